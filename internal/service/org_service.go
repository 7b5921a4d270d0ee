package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tasclms/internal/entity"
	"tasclms/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrgService manages organizations and their member rosters. Organizations
// only consume courses through member enrollment elsewhere; here they exist
// as an authorization scope.
type OrgService struct {
	orgs        repository.OrganizationRepository
	memberships repository.MembershipRepository
	users       repository.UserRepository
	clock       Clock
}

func NewOrgService(
	orgs repository.OrganizationRepository,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	clock Clock,
) *OrgService {
	return &OrgService{orgs: orgs, memberships: memberships, users: users, clock: clock}
}

func (s *OrgService) CreateOrganization(ctx context.Context, name string) (*entity.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	org := &entity.Organization{Name: name, IsActive: true}
	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrOrganizationExists
		}
		return nil, err
	}
	return org, nil
}

func (s *OrgService) AddMember(ctx context.Context, organizationID, userID uuid.UUID, role entity.MembershipRole) (*entity.Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidInput
	}

	org, err := s.orgs.FindByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	membership := &entity.Membership{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		IsActive:       true,
		JoinedAt:       s.now(),
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	return membership, nil
}

func (s *OrgService) ListMembers(ctx context.Context, organizationID uuid.UUID) ([]entity.Membership, error) {
	org, err := s.orgs.FindByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	return s.memberships.ListByOrganization(ctx, organizationID)
}

func (s *OrgService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}
