package service

import (
	"context"
	"time"

	"tasclms/internal/entity"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthConfig struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	MFATokenTTL          time.Duration
	MFAIssuer            string
}

type RegisterInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	PhoneNumber    *string
	Country        *string
	Timezone       *string
	MarketingOptIn bool
	AcceptTerms    bool
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceName string
	IPAddress  *string
	UserAgent  *string
}

type LoginMFAInput struct {
	MFAToken   string
	Code       string
	DeviceID   string
	DeviceName string
	IPAddress  *string
	UserAgent  *string
}

type LoginResult struct {
	AccessToken       string
	ExpiresIn         int64
	RefreshToken      string
	RefreshExpiresIn  int64
	MFARequired       bool
	MFAToken          string
	MFATokenExpiresIn int64
}

// EmailSender is the outbound message capability. Implementations may
// deliver asynchronously; the caller only requests dispatch.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email string, token string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

// ProviderIdentity is the verified claim set extracted from a third-party
// ID token.
type ProviderIdentity struct {
	Provider      entity.OAuthProvider
	SubjectID     string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Picture       string
}

// ProviderVerifier checks an opaque provider credential with the provider.
// A timeout or provider outage must surface as ErrProviderUnavailable,
// never as a grant.
type ProviderVerifier interface {
	Verify(ctx context.Context, idToken string) (*ProviderIdentity, error)
}

type MFATokenIssuer interface {
	IssueMFAToken(userID uuid.UUID) (string, time.Duration, error)
	ParseMFAToken(token string) (uuid.UUID, error)
}

type MFAProvider interface {
	GenerateSecret() (string, error)
	QRCodeURL(email string, issuer string, secret string) (string, error)
	ValidateCode(secret string, code string) bool
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
