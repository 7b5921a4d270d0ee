package repository

import (
	"context"
	"errors"
	"time"

	"tasclms/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationTokenRepository interface {
	Create(ctx context.Context, token *entity.VerificationToken) error
	FindValid(ctx context.Context, tokenHash string, tokenType entity.VerificationType) (*entity.VerificationToken, error)
	// Consume marks the token used only if it is still unused; the row
	// count tells the caller whether this attempt won the race.
	Consume(ctx context.Context, id uuid.UUID) (int64, error)
	// InvalidateForUser voids all outstanding unused tokens of one type,
	// used when a fresh token is issued on resend.
	InvalidateForUser(ctx context.Context, userID uuid.UUID, tokenType entity.VerificationType) error
}

type verificationTokenRepository struct {
	db *gorm.DB
}

func NewVerificationTokenRepository(db *gorm.DB) VerificationTokenRepository {
	return &verificationTokenRepository{db: db}
}

func (r *verificationTokenRepository) Create(ctx context.Context, t *entity.VerificationToken) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *verificationTokenRepository) FindValid(
	ctx context.Context,
	tokenHash string,
	tokenType entity.VerificationType,
) (*entity.VerificationToken, error) {
	var token entity.VerificationToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND type = ? AND used_at IS NULL AND expires_at > ?",
			tokenHash, tokenType, time.Now()).
		First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *verificationTokenRepository) Consume(ctx context.Context, id uuid.UUID) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entity.VerificationToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", &now)
	return result.RowsAffected, result.Error
}

func (r *verificationTokenRepository) InvalidateForUser(
	ctx context.Context,
	userID uuid.UUID,
	tokenType entity.VerificationType,
) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.VerificationToken{}).
		Where("user_id = ? AND type = ? AND used_at IS NULL", userID, tokenType).
		Update("used_at", &now).
		Error
}
