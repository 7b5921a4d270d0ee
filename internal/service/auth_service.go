package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasclms/internal/entity"
	"tasclms/internal/repository"
	"tasclms/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

// AuthService drives the account lifecycle (registration, verification,
// activation), the login gate, and the credential pair with its rotation.
type AuthService struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	verifications repository.VerificationTokenRepository
	mfaSecrets    repository.MFASecretRepository
	securityLogs  repository.SecurityLogRepository

	emailSender  EmailSender
	passwordHash PasswordHasher
	tokens       utils.TokenManager
	mfaTokens    MFATokenIssuer
	mfaProvider  MFAProvider
	clock        Clock
	config       AuthConfig
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifications repository.VerificationTokenRepository,
	mfaSecrets repository.MFASecretRepository,
	securityLogs repository.SecurityLogRepository,
	emailSender EmailSender,
	passwordHash PasswordHasher,
	tokens utils.TokenManager,
	mfaTokens MFATokenIssuer,
	mfaProvider MFAProvider,
	clock Clock,
	config AuthConfig,
) *AuthService {
	return &AuthService{
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		mfaSecrets:    mfaSecrets,
		securityLogs:  securityLogs,
		emailSender:   emailSender,
		passwordHash:  passwordHash,
		tokens:        tokens,
		mfaTokens:     mfaTokens,
		mfaProvider:   mfaProvider,
		clock:         clock,
		config:        config,
	}
}

// Register creates a pending account (unverified, inactive) and requests
// dispatch of a verification message. A claimed email fails as a duplicate
// regardless of whether the claimant ever verified; the database unique
// constraint closes the concurrent-create window.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*entity.User, error) {
	if strings.TrimSpace(input.Email) == "" || strings.TrimSpace(input.Password) == "" {
		return nil, ErrInvalidInput
	}
	if !input.AcceptTerms {
		return nil, ErrTermsNotAccepted
	}
	if err := utils.ValidatePassword(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	email := utils.NormalizeEmail(input.Email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hash, err := s.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		Email:           email,
		PasswordHash:    &hash,
		Role:            entity.UserRoleLearner,
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		PhoneNumber:     input.PhoneNumber,
		Country:         input.Country,
		Timezone:        input.Timezone,
		MarketingOptIn:  input.MarketingOptIn,
		TermsAcceptedAt: &now,
		IsActive:        false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}

	s.sendEmailVerification(ctx, user)
	return user, nil
}

// VerifyEmail consumes a verification token and flips the owning account to
// verified and active. Consumption is a conditional update, so the same
// token submitted twice activates at most once; the second caller gets
// ErrInvalidToken and the account state is untouched.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*entity.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidInput
	}

	verification, err := s.verifications.FindValid(ctx, utils.HashToken(token), entity.EmailVerify)
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, ErrInvalidToken
	}

	rows, err := s.verifications.Consume(ctx, verification.ID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInvalidToken
	}

	if err := s.users.Activate(ctx, verification.UserID); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, verification.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	_ = s.logSecurity(ctx, &user.ID, nil, entity.EmailVerified, nil)
	return user, nil
}

// ResendVerification always reports success to the caller. Unknown and
// already-verified emails are silent no-ops so the endpoint cannot be used
// to enumerate accounts; otherwise outstanding tokens are voided and a
// fresh one is dispatched.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrInvalidInput
	}

	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil || user.EmailVerified() {
		return nil
	}

	if err := s.verifications.InvalidateForUser(ctx, user.ID, entity.EmailVerify); err != nil {
		return err
	}
	s.sendEmailVerification(ctx, user)
	return nil
}

// Login is the single checkpoint for password authentication. The three
// failure modes (bad credentials, unverified, suspended) are audited
// distinctly; bad credentials stay uniform externally whether the email is
// known or not.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Email) == "" || strings.TrimSpace(input.Password) == "" || strings.TrimSpace(input.DeviceID) == "" {
		return nil, ErrInvalidInput
	}

	email := utils.NormalizeEmail(input.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil {
		// Burn a comparison so unknown emails cost the same as known ones.
		_ = s.passwordHash.Verify(dummyPasswordHash, input.Password)
		_ = s.logSecurity(ctx, nil, input.IPAddress, entity.LoginFailed, map[string]any{"email": email, "reason": "unknown_or_passwordless"})
		return nil, ErrInvalidCredentials
	}

	if !s.passwordHash.Verify(*user.PasswordHash, input.Password) {
		_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"reason": "bad_password"})
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified() {
		_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"reason": "email_not_verified"})
		return nil, ErrEmailNotVerified
	}
	if !user.IsActive {
		_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"reason": "account_inactive"})
		return nil, ErrAccountInactive
	}

	if s.mfaProvider != nil && s.mfaSecrets != nil && s.mfaTokens != nil {
		secret, err := s.mfaSecrets.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if secret != nil && secret.EnabledAt != nil {
			mfaToken, expiresIn, err := s.mfaTokens.IssueMFAToken(user.ID)
			if err != nil {
				return nil, err
			}
			return &LoginResult{
				MFARequired:       true,
				MFAToken:          mfaToken,
				MFATokenExpiresIn: int64(expiresIn.Seconds()),
			}, nil
		}
	}

	result, err := s.createSessionAndTokens(ctx, user, input.DeviceID, input.DeviceName, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginSuccess, map[string]any{"device_id": input.DeviceID})
	return result, nil
}

func (s *AuthService) LoginWithMFA(ctx context.Context, input LoginMFAInput) (*LoginResult, error) {
	if s.mfaProvider == nil || s.mfaTokens == nil || s.mfaSecrets == nil {
		return nil, ErrMFANotConfigured
	}
	if strings.TrimSpace(input.MFAToken) == "" || strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.DeviceID) == "" {
		return nil, ErrInvalidInput
	}

	userID, err := s.mfaTokens.ParseMFAToken(input.MFAToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	secret, err := s.mfaSecrets.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.EnabledAt == nil {
		return nil, ErrMFARequired
	}
	if !s.mfaProvider.ValidateCode(secret.Secret, input.Code) {
		_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.MFAFailed, map[string]any{"device_id": input.DeviceID})
		return nil, ErrInvalidMFACode
	}

	result, err := s.createSessionAndTokens(ctx, user, input.DeviceID, input.DeviceName, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}
	_ = s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginSuccess, map[string]any{"device_id": input.DeviceID, "mfa": true})
	return result, nil
}

// Refresh exchanges a refresh token for a new credential pair and advances
// the rotation generation. Presenting a superseded generation, or losing
// the conditional update race for the same token, is treated as compromise:
// every session of the subject is revoked and re-login is forced. Access
// tokens already in the wild keep validating until their own expiry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidInput
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.RevokedAt != nil || !session.ExpiresAt.After(s.now()) {
		return nil, ErrInvalidToken
	}

	if claims.Generation != session.Generation {
		return nil, s.handleRefreshReuse(ctx, session)
	}

	newExpiry := s.now().Add(s.refreshTokenTTL())
	rows, err := s.sessions.AdvanceGeneration(ctx, session.ID, claims.Generation, newExpiry)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, s.handleRefreshReuse(ctx, session)
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	return s.issuePair(user, session.ID, claims.Generation+1, newExpiry)
}

func (s *AuthService) handleRefreshReuse(ctx context.Context, session *entity.Session) error {
	if err := s.sessions.RevokeAllByUser(ctx, session.UserID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &session.UserID, nil, entity.RefreshReuse, map[string]any{"session_id": session.ID.String()})
	return ErrRefreshReuse
}

func (s *AuthService) Logout(ctx context.Context, sessionID uuid.UUID, userID *uuid.UUID, ipAddress *string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, userID, ipAddress, entity.Logout, nil)
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, ipAddress *string) error {
	if err := s.sessions.RevokeAllByUser(ctx, userID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &userID, ipAddress, entity.SessionRevoked, map[string]any{"scope": "all"})
	return nil
}

// ValidateAccess verifies an access token statelessly and confirms the
// backing session has not been explicitly revoked.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*utils.AccessClaims, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]entity.User, error) {
	return s.users.List(ctx, limit, offset)
}

// DeactivateUser suspends an account administratively and cuts its refresh
// lineages. Verified state is retained: SUSPENDED can return to ACTIVE.
func (s *AuthService) DeactivateUser(ctx context.Context, userID uuid.UUID, actorID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllByUser(ctx, userID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &userID, nil, entity.AccountDeactivated, map[string]any{"actor": actorID.String()})
	return nil
}

// ReactivateUser returns a suspended account to active. An account that
// never verified its email cannot be activated this way; there is no
// administrative bypass of verification.
func (s *AuthService) ReactivateUser(ctx context.Context, userID uuid.UUID, actorID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !user.EmailVerified() {
		return ErrEmailNotVerified
	}
	if _, err := s.users.Reactivate(ctx, userID); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &userID, nil, entity.AccountReactivated, map[string]any{"actor": actorID.String()})
	return nil
}

func (s *AuthService) ChangeRole(ctx context.Context, userID uuid.UUID, role entity.UserRole, actorID uuid.UUID) error {
	if !role.Valid() {
		return ErrInvalidInput
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return err
	}
	_ = s.logSecurity(ctx, &userID, nil, entity.RoleChanged, map[string]any{"actor": actorID.String(), "from": string(user.Role), "to": string(role)})
	return nil
}

func (s *AuthService) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUser(ctx, userID)
}

func (s *AuthService) EnableMFA(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.mfaProvider == nil || s.mfaSecrets == nil {
		return "", ErrMFANotConfigured
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	secret, err := s.mfaProvider.GenerateSecret()
	if err != nil {
		return "", err
	}
	if err := s.mfaSecrets.Upsert(ctx, &entity.MFASecret{UserID: user.ID, Secret: secret}); err != nil {
		return "", err
	}

	issuer := s.config.MFAIssuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "TASC LMS"
	}
	return s.mfaProvider.QRCodeURL(user.Email, issuer, secret)
}

func (s *AuthService) VerifyMFA(ctx context.Context, userID uuid.UUID, code string) error {
	if s.mfaProvider == nil || s.mfaSecrets == nil {
		return ErrMFANotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return ErrInvalidInput
	}
	secret, err := s.mfaSecrets.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if secret == nil {
		return ErrMFARequired
	}
	if !s.mfaProvider.ValidateCode(secret.Secret, code) {
		return ErrInvalidMFACode
	}

	now := s.now()
	// Fresh record so the upsert conflicts on user_id, not the old row's id.
	return s.mfaSecrets.Upsert(ctx, &entity.MFASecret{
		UserID:    userID,
		Secret:    secret.Secret,
		EnabledAt: &now,
	})
}

func (s *AuthService) DisableMFA(ctx context.Context, userID uuid.UUID) error {
	if s.mfaSecrets == nil {
		return nil
	}
	return s.mfaSecrets.Disable(ctx, userID)
}

// CreateSession opens a refresh lineage and issues the credential pair for
// an already-gated user. The OAuth sign-in path shares it with Login.
func (s *AuthService) CreateSession(ctx context.Context, user *entity.User, deviceID, deviceName string, ipAddress, userAgent *string) (*LoginResult, error) {
	return s.createSessionAndTokens(ctx, user, deviceID, deviceName, ipAddress, userAgent)
}

func (s *AuthService) createSessionAndTokens(
	ctx context.Context,
	user *entity.User,
	deviceID string,
	deviceName string,
	ipAddress *string,
	userAgent *string,
) (*LoginResult, error) {
	expiresAt := s.now().Add(s.refreshTokenTTL())
	session := &entity.Session{
		UserID:     user.ID,
		Generation: 1,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return s.issuePair(user, session.ID, session.Generation, expiresAt)
}

func (s *AuthService) issuePair(user *entity.User, sessionID uuid.UUID, generation int64, refreshExpiry time.Time) (*LoginResult, error) {
	accessToken, expiresIn, err := s.tokens.IssueAccessToken(user.ID.String(), string(user.Role), sessionID.String())
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID.String(), sessionID.String(), generation)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:      accessToken,
		ExpiresIn:        int64(expiresIn.Seconds()),
		RefreshToken:     refreshToken,
		RefreshExpiresIn: int64(refreshExpiry.Sub(s.now()).Seconds()),
	}, nil
}

func (s *AuthService) sendEmailVerification(ctx context.Context, user *entity.User) {
	if s.emailSender == nil {
		return
	}
	token, err := s.createVerificationToken(ctx, user.ID, entity.EmailVerify, s.verificationTokenTTL())
	if err != nil {
		return
	}
	// Dispatch is best-effort and asynchronous; a mail outage must not
	// fail the registration that triggered it.
	_ = s.emailSender.SendVerificationEmail(ctx, user.Email, token)
}

func (s *AuthService) createVerificationToken(
	ctx context.Context,
	userID uuid.UUID,
	typeValue entity.VerificationType,
	ttl time.Duration,
) (string, error) {
	rawToken, err := utils.GenerateRandomToken(32)
	if err != nil {
		return "", err
	}

	verification := &entity.VerificationToken{
		UserID:    userID,
		TokenHash: utils.HashToken(rawToken),
		Type:      typeValue,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.verifications.Create(ctx, verification); err != nil {
		return "", err
	}
	return rawToken, nil
}

func (s *AuthService) logSecurity(
	ctx context.Context,
	userID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) error {
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

func (s *AuthService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *AuthService) verificationTokenTTL() time.Duration {
	if s.config.VerificationTokenTTL > 0 {
		return s.config.VerificationTokenTTL
	}
	return 24 * time.Hour
}

func (s *AuthService) refreshTokenTTL() time.Duration {
	if s.config.RefreshTokenTTL > 0 {
		return s.config.RefreshTokenTTL
	}
	return 30 * 24 * time.Hour
}
