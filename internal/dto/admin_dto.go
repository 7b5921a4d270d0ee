package dto

import (
	"time"

	"tasclms/internal/entity"
)

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func OrganizationResponseFromEntity(org *entity.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		IsActive:  org.IsActive,
		CreatedAt: org.CreatedAt,
	}
}

type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required"`
}

type MembershipResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
}

func MembershipResponseFromEntity(m *entity.Membership) MembershipResponse {
	return MembershipResponse{
		ID:             m.ID.String(),
		UserID:         m.UserID.String(),
		OrganizationID: m.OrganizationID.String(),
		Role:           string(m.Role),
		IsActive:       m.IsActive,
		JoinedAt:       m.JoinedAt,
	}
}

func MembershipResponsesFromEntities(memberships []entity.Membership) []MembershipResponse {
	responses := make([]MembershipResponse, 0, len(memberships))
	for i := range memberships {
		responses = append(responses, MembershipResponseFromEntity(&memberships[i]))
	}
	return responses
}
