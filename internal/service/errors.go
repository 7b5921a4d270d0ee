package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrWeakPassword           = errors.New("password does not meet complexity requirements")
	ErrTermsNotAccepted       = errors.New("terms of service must be accepted")
	ErrEmailAlreadyRegistered = errors.New("email already registered")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAccountInactive    = errors.New("account is inactive")

	ErrInvalidToken = errors.New("invalid or expired token")
	ErrExpiredToken = errors.New("token expired")
	// ErrRefreshReuse means a rotated-out refresh token was presented.
	// This is treated as compromise: every refresh lineage of the subject
	// is revoked and a fresh login is required.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	ErrAlreadyLinked          = errors.New("provider account already linked to another user")
	ErrLinkNotFound           = errors.New("no link for this provider")
	ErrDuplicateProvider      = errors.New("provider already linked to this account")
	ErrLastAuthMethod         = errors.New("cannot remove the only authentication method")
	ErrAccountExistsNeedsLink = errors.New("account with this email already exists and must be linked explicitly")
	ErrInvalidProviderToken   = errors.New("invalid provider token")
	ErrProviderUnavailable    = errors.New("identity provider unavailable")

	ErrMFARequired      = errors.New("mfa required")
	ErrInvalidMFACode   = errors.New("invalid mfa code")
	ErrMFANotConfigured = errors.New("mfa not configured")

	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrOrganizationExists   = errors.New("organization already exists")
	ErrAlreadyMember        = errors.New("user is already a member of this organization")
	ErrForbidden            = errors.New("forbidden")
)
