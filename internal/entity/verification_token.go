package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationType string

const EmailVerify VerificationType = "email_verify"

// VerificationToken is a single-use, time-bounded proof that the holder
// controls the claimed email. Only the sha256 hash of the token is stored.
type VerificationToken struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	TokenHash string           `gorm:"type:text;not null;index"`
	Type      VerificationType `gorm:"type:varchar(30);not null"`

	ExpiresAt time.Time
	UsedAt    *time.Time

	CreatedAt time.Time
}

func (t *VerificationToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
