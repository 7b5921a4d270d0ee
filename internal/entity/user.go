package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleLearner    UserRole = "learner"
	UserRoleInstructor UserRole = "instructor"
	UserRoleLMSManager UserRole = "lms_manager"
	UserRoleFinance    UserRole = "finance"
	UserRoleOrgAdmin   UserRole = "org_admin"
	UserRoleTascAdmin  UserRole = "tasc_admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleLearner, UserRoleInstructor, UserRoleLMSManager,
		UserRoleFinance, UserRoleOrgAdmin, UserRoleTascAdmin:
		return true
	}
	return false
}

// User is the core account record for one principal. Individuals can
// self-signup and exist without any organization; membership is optional.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash *string   `gorm:"type:text"`
	Role         UserRole  `gorm:"type:varchar(30);default:'learner';not null"`

	FirstName   string  `gorm:"type:varchar(150)"`
	LastName    string  `gorm:"type:varchar(150)"`
	PhoneNumber *string `gorm:"type:varchar(32)"`
	Country     *string `gorm:"type:varchar(80)"`
	Timezone    *string `gorm:"type:varchar(80)"`

	MarketingOptIn  bool `gorm:"default:false"`
	TermsAcceptedAt *time.Time

	// An account is never active while unverified. Registration starts
	// unverified and inactive; verification flips both.
	EmailVerifiedAt *time.Time
	IsActive        bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Sessions   []Session
	OAuthLinks []OAuthLink
	MFASecret  *MFASecret
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
