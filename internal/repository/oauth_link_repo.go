package repository

import (
	"context"
	"errors"

	"tasclms/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OAuthLinkRepository interface {
	Create(ctx context.Context, link *entity.OAuthLink) error
	// CreateUserWithLink creates a provider-originated account and its
	// link in one transaction so a crash cannot leave either half behind.
	CreateUserWithLink(ctx context.Context, user *entity.User, link *entity.OAuthLink) error
	FindByProviderSubject(ctx context.Context, provider entity.OAuthProvider, subjectID string) (*entity.OAuthLink, error)
	FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider entity.OAuthProvider) (*entity.OAuthLink, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.OAuthLink, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type oauthLinkRepository struct {
	db *gorm.DB
}

func NewOAuthLinkRepository(db *gorm.DB) OAuthLinkRepository {
	return &oauthLinkRepository{db: db}
}

func (r *oauthLinkRepository) Create(ctx context.Context, link *entity.OAuthLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *oauthLinkRepository) CreateUserWithLink(ctx context.Context, user *entity.User, link *entity.OAuthLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		link.UserID = user.ID
		return tx.Create(link).Error
	})
}

func (r *oauthLinkRepository) FindByProviderSubject(
	ctx context.Context,
	provider entity.OAuthProvider,
	subjectID string,
) (*entity.OAuthLink, error) {
	var link entity.OAuthLink
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_subject_id = ?", provider, subjectID).
		First(&link).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *oauthLinkRepository) FindByUserAndProvider(
	ctx context.Context,
	userID uuid.UUID,
	provider entity.OAuthProvider,
) (*entity.OAuthLink, error) {
	var link entity.OAuthLink
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&link).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *oauthLinkRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.OAuthLink, error) {
	var links []entity.OAuthLink
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("linked_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *oauthLinkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&entity.OAuthLink{}, "id = ?", id).
		Error
}
