package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OAuthProvider string

const ProviderGoogle OAuthProvider = "google"

func (p OAuthProvider) Valid() bool {
	return p == ProviderGoogle
}

// OAuthLink associates a user with a third-party provider identity.
// (provider, provider_subject_id) is globally unique: no two users may
// claim the same external account, and a user holds at most one link per
// provider.
type OAuthLink struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_provider,priority:1"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	Provider          OAuthProvider `gorm:"type:varchar(20);not null;uniqueIndex:idx_provider_subject,priority:1;uniqueIndex:idx_user_provider,priority:2"`
	ProviderSubjectID string        `gorm:"type:varchar(255);not null;uniqueIndex:idx_provider_subject,priority:2"`

	PictureURL *string `gorm:"type:text"`

	LinkedAt  time.Time
	CreatedAt time.Time
}

func (l *OAuthLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
