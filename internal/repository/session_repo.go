package repository

import (
	"context"
	"errors"
	"time"

	"tasclms/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	// AdvanceGeneration rotates the refresh lineage: the update only
	// applies while the stored generation still equals the presented one,
	// so concurrent refreshes with the same token cannot both win.
	AdvanceGeneration(ctx context.Context, sessionID uuid.UUID, presented int64, newExpiry time.Time) (int64, error)
	Revoke(ctx context.Context, sessionID uuid.UUID) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) error
	CleanupExpired(ctx context.Context) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *entity.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var session entity.Session
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) AdvanceGeneration(
	ctx context.Context,
	sessionID uuid.UUID,
	presented int64,
	newExpiry time.Time,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.Session{}).
		Where("id = ? AND generation = ? AND revoked_at IS NULL", sessionID, presented).
		Updates(map[string]any{
			"generation": presented + 1,
			"expires_at": newExpiry,
		})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", &now).
		Error
}

func (r *sessionRepository) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", &now).
		Error
}

func (r *sessionRepository) CleanupExpired(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&entity.Session{}).
		Error
}
