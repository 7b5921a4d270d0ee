package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MFASecret holds a user's TOTP secret. The secret is provisioned first and
// only counts once EnabledAt is set by a successful code verification.
type MFASecret struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	Secret    string `gorm:"type:text;not null"`
	EnabledAt *time.Time

	CreatedAt time.Time
}

func (s *MFASecret) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
