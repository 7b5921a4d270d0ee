package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization enrolls staff to consume courses. Organizations do not own
// content; they only manage members and reporting context.
type Organization struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name     string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	IsActive bool      `gorm:"default:true"`

	CreatedAt time.Time

	Memberships []Membership
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

type MembershipRole string

const (
	MembershipRoleOrgAdmin   MembershipRole = "ORG_ADMIN"
	MembershipRoleOrgManager MembershipRole = "ORG_MANAGER"
	MembershipRoleOrgLearner MembershipRole = "ORG_LEARNER"
	MembershipRoleTascAdmin  MembershipRole = "TASC_ADMIN"
	MembershipRoleFinance    MembershipRole = "FINANCE"
)

func (r MembershipRole) Valid() bool {
	switch r {
	case MembershipRoleOrgAdmin, MembershipRoleOrgManager,
		MembershipRoleOrgLearner, MembershipRoleTascAdmin, MembershipRoleFinance:
		return true
	}
	return false
}

// Membership links a user to an organization with an org-specific role.
// A user may have no membership at all (pure individual).
type Membership struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_user_org,priority:1"`
	User           User         `gorm:"constraint:OnDelete:CASCADE"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_user_org,priority:2"`
	Organization   Organization `gorm:"constraint:OnDelete:CASCADE"`

	Role     MembershipRole `gorm:"type:varchar(20);default:'ORG_LEARNER';not null"`
	IsActive bool           `gorm:"default:true"`

	JoinedAt  time.Time
	CreatedAt time.Time
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
