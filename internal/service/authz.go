package service

import (
	"context"

	"tasclms/internal/entity"
	"tasclms/internal/repository"

	"github.com/google/uuid"
)

// Authorizer is the role and membership gate for per-request checks. All
// checks fail closed: absence of a matching role or membership is a
// denial, never a default allow.
type Authorizer struct {
	memberships repository.MembershipRepository
}

func NewAuthorizer(memberships repository.MembershipRepository) *Authorizer {
	return &Authorizer{memberships: memberships}
}

// HasRole reports whether role is one of the allowed platform roles.
func (a *Authorizer) HasRole(role entity.UserRole, allowed ...entity.UserRole) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// AuthorizeOrg checks an organization-scoped permission. Platform
// tasc_admin acts across all organizations; everyone else needs an active
// membership with one of the allowed org roles.
func (a *Authorizer) AuthorizeOrg(
	ctx context.Context,
	userID uuid.UUID,
	userRole entity.UserRole,
	organizationID uuid.UUID,
	allowed ...entity.MembershipRole,
) error {
	if userRole == entity.UserRoleTascAdmin {
		return nil
	}
	if a.memberships == nil {
		return ErrForbidden
	}

	membership, err := a.memberships.FindByUserAndOrg(ctx, userID, organizationID)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrForbidden
	}
	for _, candidate := range allowed {
		if membership.Role == candidate {
			return nil
		}
	}
	return ErrForbidden
}
