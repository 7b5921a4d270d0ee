package dto

import (
	"time"

	"tasclms/internal/entity"
)

type OAuthSignInRequest struct {
	IDToken    string `json:"id_token" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required"`
	DeviceName string `json:"device_name" validate:"omitempty"`
}

type OAuthSignInResponse struct {
	AccessToken      string       `json:"access_token"`
	ExpiresIn        int64        `json:"expires_in"`
	RefreshToken     string       `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64        `json:"refresh_expires_in,omitempty"`
	User             UserResponse `json:"user"`
	IsNewUser        bool         `json:"is_new_user"`
}

type OAuthLinkRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type OAuthUnlinkRequest struct {
	Provider string `json:"provider" validate:"required"`
}

type OAuthLinkStatus struct {
	Provider string    `json:"provider"`
	LinkedAt time.Time `json:"linked_at"`
}

type OAuthStatusResponse struct {
	Links []OAuthLinkStatus `json:"links"`
}

func OAuthStatusFromLinks(links []entity.OAuthLink) OAuthStatusResponse {
	statuses := make([]OAuthLinkStatus, 0, len(links))
	for _, link := range links {
		statuses = append(statuses, OAuthLinkStatus{
			Provider: string(link.Provider),
			LinkedAt: link.LinkedAt,
		})
	}
	return OAuthStatusResponse{Links: statuses}
}
