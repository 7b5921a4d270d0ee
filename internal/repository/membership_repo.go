package repository

import (
	"context"
	"errors"

	"tasclms/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrganizationRepository interface {
	Create(ctx context.Context, org *entity.Organization) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Organization, error)
}

type organizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *organizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

type MembershipRepository interface {
	Create(ctx context.Context, membership *entity.Membership) error
	FindByUserAndOrg(ctx context.Context, userID, organizationID uuid.UUID) (*entity.Membership, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]entity.Membership, error)
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(ctx context.Context, m *entity.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *membershipRepository) FindByUserAndOrg(
	ctx context.Context,
	userID, organizationID uuid.UUID,
) (*entity.Membership, error) {
	var membership entity.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ? AND is_active = true", userID, organizationID).
		First(&membership).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *membershipRepository) ListByOrganization(
	ctx context.Context,
	organizationID uuid.UUID,
) ([]entity.Membership, error) {
	var memberships []entity.Membership
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = true", organizationID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}
