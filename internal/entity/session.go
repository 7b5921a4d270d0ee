package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session tracks one refresh-token lineage. Generation is the rotation
// counter embedded in the current refresh token; presenting an older
// generation means the token was already rotated out.
type Session struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	Generation int64 `gorm:"not null;default:1"`

	DeviceID   string  `gorm:"type:varchar(255);not null"`
	DeviceName string  `gorm:"type:varchar(100)"`
	IPAddress  *string `gorm:"type:varchar(45)"`
	UserAgent  *string `gorm:"type:text"`

	ExpiresAt time.Time
	RevokedAt *time.Time

	CreatedAt time.Time
}

func (s *Session) Usable() bool {
	return s.RevokedAt == nil && time.Now().Before(s.ExpiresAt)
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
