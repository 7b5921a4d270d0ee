package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tasclms/internal/entity"
	"tasclms/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OAuthService mediates association between third-party provider identities
// and local accounts. Sign-in, link and unlink all pass through the same
// lifecycle checks as password authentication.
type OAuthService struct {
	users        repository.UserRepository
	links        repository.OAuthLinkRepository
	securityLogs repository.SecurityLogRepository
	verifiers    map[entity.OAuthProvider]ProviderVerifier
	auth         *AuthService
	clock        Clock
}

func NewOAuthService(
	users repository.UserRepository,
	links repository.OAuthLinkRepository,
	securityLogs repository.SecurityLogRepository,
	verifiers map[entity.OAuthProvider]ProviderVerifier,
	auth *AuthService,
	clock Clock,
) *OAuthService {
	return &OAuthService{
		users:        users,
		links:        links,
		securityLogs: securityLogs,
		verifiers:    verifiers,
		auth:         auth,
		clock:        clock,
	}
}

type SignInInput struct {
	Provider   entity.OAuthProvider
	IDToken    string
	DeviceID   string
	DeviceName string
	IPAddress  *string
	UserAgent  *string
}

type SignInResult struct {
	User      *entity.User
	Tokens    *LoginResult
	IsNewUser bool
}

// SignIn authenticates via a provider ID token. A known link resolves to
// its owner; an unknown link whose email is already claimed locally fails
// with ErrAccountExistsNeedsLink rather than silently merging accounts;
// otherwise a pre-verified account is created together with the link.
func (s *OAuthService) SignIn(ctx context.Context, input SignInInput) (*SignInResult, error) {
	if strings.TrimSpace(input.IDToken) == "" || strings.TrimSpace(input.DeviceID) == "" {
		return nil, ErrInvalidInput
	}

	identity, err := s.verify(ctx, input.Provider, input.IDToken)
	if err != nil {
		return nil, err
	}

	link, err := s.links.FindByProviderSubject(ctx, identity.Provider, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return s.signInExisting(ctx, link.UserID, input, false)
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExistsNeedsLink
	}

	now := s.now()
	user := &entity.User{
		Email:     email,
		Role:      entity.UserRoleLearner,
		FirstName: identity.GivenName,
		LastName:  identity.FamilyName,
		// The provider already verified the address, so the account
		// enters the lifecycle directly at ACTIVE.
		EmailVerifiedAt: &now,
		IsActive:        true,
	}
	newLink := s.buildLink(user.ID, identity, now)
	if err := s.links.CreateUserWithLink(ctx, user, newLink); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a create race. If the link now exists we are the
			// second concurrent sign-in for the same external account;
			// resolve to the winner. An email collision means a local
			// account appeared and must be linked explicitly.
			winner, findErr := s.links.FindByProviderSubject(ctx, identity.Provider, identity.SubjectID)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return s.signInExisting(ctx, winner.UserID, input, false)
			}
			return nil, ErrAccountExistsNeedsLink
		}
		return nil, err
	}

	return s.signInExisting(ctx, user.ID, input, true)
}

func (s *OAuthService) signInExisting(ctx context.Context, userID uuid.UUID, input SignInInput, isNew bool) (*SignInResult, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"reason": "account_inactive", "provider": string(input.Provider)})
		return nil, ErrAccountInactive
	}

	tokens, err := s.auth.CreateSession(ctx, user, input.DeviceID, input.DeviceName, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.OAuthSignIn, map[string]any{"provider": string(input.Provider), "new_user": isNew})
	return &SignInResult{User: user, Tokens: tokens, IsNewUser: isNew}, nil
}

// Link attaches a provider identity to an authenticated account.
func (s *OAuthService) Link(ctx context.Context, userID uuid.UUID, provider entity.OAuthProvider, idToken string) (*entity.OAuthLink, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidInput
	}

	identity, err := s.verify(ctx, provider, idToken)
	if err != nil {
		return nil, err
	}

	existing, err := s.links.FindByProviderSubject(ctx, identity.Provider, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.UserID == userID {
			return nil, ErrDuplicateProvider
		}
		return nil, ErrAlreadyLinked
	}

	mine, err := s.links.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if mine != nil {
		return nil, ErrDuplicateProvider
	}

	link := s.buildLink(userID, identity, s.now())
	if err := s.links.Create(ctx, link); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyLinked
		}
		return nil, err
	}

	_ = s.logSecurity(ctx, &userID, nil, entity.OAuthLinked, map[string]any{"provider": string(provider)})
	return link, nil
}

// Unlink removes a provider link, but never the account's last way to
// authenticate: a set password or another linked provider must remain.
func (s *OAuthService) Unlink(ctx context.Context, userID uuid.UUID, provider entity.OAuthProvider) error {
	link, err := s.links.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrLinkNotFound
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if user.PasswordHash == nil {
		all, err := s.links.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(all) <= 1 {
			return ErrLastAuthMethod
		}
	}

	if err := s.links.Delete(ctx, link.ID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &userID, nil, entity.OAuthUnlinked, map[string]any{"provider": string(provider)})
	return nil
}

// Status reports the account's provider links; read-only.
func (s *OAuthService) Status(ctx context.Context, userID uuid.UUID) ([]entity.OAuthLink, error) {
	return s.links.ListByUser(ctx, userID)
}

func (s *OAuthService) verify(ctx context.Context, provider entity.OAuthProvider, idToken string) (*ProviderIdentity, error) {
	if !provider.Valid() {
		return nil, ErrInvalidInput
	}
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, ErrInvalidInput
	}

	identity, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if identity.SubjectID == "" || identity.Email == "" {
		return nil, ErrInvalidProviderToken
	}
	if !identity.EmailVerified {
		return nil, ErrInvalidProviderToken
	}
	return identity, nil
}

func (s *OAuthService) buildLink(userID uuid.UUID, identity *ProviderIdentity, now time.Time) *entity.OAuthLink {
	link := &entity.OAuthLink{
		UserID:            userID,
		Provider:          identity.Provider,
		ProviderSubjectID: identity.SubjectID,
		LinkedAt:          now,
	}
	if identity.Picture != "" {
		link.PictureURL = &identity.Picture
	}
	return link
}

func (s *OAuthService) logSecurity(ctx context.Context, userID *uuid.UUID, ipAddress *string, action entity.SecurityAction, metadata map[string]any) error {
	if s.securityLogs == nil {
		return nil
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(bytes)
	}
	return s.securityLogs.Log(ctx, &entity.SecurityLog{
		UserID:    userID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	})
}

func (s *OAuthService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}
