package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SecurityAction string

const (
	LoginSuccess       SecurityAction = "login_success"
	LoginFailed        SecurityAction = "login_failed"
	Logout             SecurityAction = "logout"
	MFAFailed          SecurityAction = "mfa_failed"
	SessionRevoked     SecurityAction = "session_revoked"
	RefreshReuse       SecurityAction = "refresh_reuse_detected"
	EmailVerified      SecurityAction = "email_verified"
	OAuthSignIn        SecurityAction = "oauth_sign_in"
	OAuthLinked        SecurityAction = "oauth_linked"
	OAuthUnlinked      SecurityAction = "oauth_unlinked"
	AccountDeactivated SecurityAction = "account_deactivated"
	AccountReactivated SecurityAction = "account_reactivated"
	RoleChanged        SecurityAction = "role_changed"
)

// SecurityLog is the internal audit trail. Login and resend failures stay
// vague externally; the precise reason is recorded here.
type SecurityLog struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserID *uuid.UUID `gorm:"type:uuid;index"`
	User   *User      `gorm:"constraint:OnDelete:SET NULL"`

	IPAddress *string        `gorm:"type:varchar(45)"`
	Action    SecurityAction `gorm:"type:varchar(40);not null"`

	Metadata datatypes.JSON

	CreatedAt time.Time
}

func (l *SecurityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
