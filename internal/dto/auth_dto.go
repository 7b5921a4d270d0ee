package dto

import (
	"time"

	"tasclms/internal/entity"
)

type RegisterRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8"`
	FirstName      string  `json:"first_name" validate:"omitempty,max=150"`
	LastName       string  `json:"last_name" validate:"omitempty,max=150"`
	PhoneNumber    *string `json:"phone_number" validate:"omitempty,max=32"`
	Country        *string `json:"country" validate:"omitempty,max=80"`
	Timezone       *string `json:"timezone" validate:"omitempty,max=80"`
	MarketingOptIn bool    `json:"marketing_opt_in"`
	AcceptTerms    bool    `json:"accept_terms"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required"`
	DeviceName string `json:"device_name" validate:"omitempty"`
}

type LoginMFARequest struct {
	MFAToken   string `json:"mfa_token" validate:"required"`
	Code       string `json:"code" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required"`
	DeviceName string `json:"device_name" validate:"omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty"`
}

type LoginResponse struct {
	AccessToken       string `json:"access_token,omitempty"`
	ExpiresIn         int64  `json:"expires_in,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	RefreshExpiresIn  int64  `json:"refresh_expires_in,omitempty"`
	MFARequired       bool   `json:"mfa_required,omitempty"`
	MFAToken          string `json:"mfa_token,omitempty"`
	MFATokenExpiresIn int64  `json:"mfa_token_expires_in,omitempty"`
}

type MFAEnableResponse struct {
	QRCode string `json:"qr_code"`
}

type MFAVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

type UserResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	PhoneNumber     *string    `json:"phone_number,omitempty"`
	Country         *string    `json:"country,omitempty"`
	Timezone        *string    `json:"timezone,omitempty"`
	MarketingOptIn  bool       `json:"marketing_opt_in"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty"`
	EmailVerified   bool       `json:"email_verified"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func UserResponseFromEntity(user *entity.User) UserResponse {
	return UserResponse{
		ID:              user.ID.String(),
		Name:            user.FullName(),
		Email:           user.Email,
		Role:            string(user.Role),
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		PhoneNumber:     user.PhoneNumber,
		Country:         user.Country,
		Timezone:        user.Timezone,
		MarketingOptIn:  user.MarketingOptIn,
		TermsAcceptedAt: user.TermsAcceptedAt,
		EmailVerified:   user.EmailVerified(),
		IsActive:        user.IsActive,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

func UserResponsesFromEntities(users []entity.User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, UserResponseFromEntity(&users[i]))
	}
	return responses
}
