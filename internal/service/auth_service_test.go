package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tasclms/internal/entity"
	"tasclms/internal/repository"
	"tasclms/internal/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&entity.User{},
		&entity.VerificationToken{},
		&entity.Session{},
		&entity.OAuthLink{},
		&entity.Organization{},
		&entity.Membership{},
		&entity.MFASecret{},
		&entity.SecurityLog{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// captureSender records verification tokens instead of delivering them.
type captureSender struct {
	mu     sync.Mutex
	tokens map[string][]string
}

func newCaptureSender() *captureSender {
	return &captureSender{tokens: make(map[string][]string)}
}

func (c *captureSender) SendVerificationEmail(ctx context.Context, email string, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[email] = append(c.tokens[email], token)
	return nil
}

func (c *captureSender) lastToken(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent := c.tokens[email]
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

func (c *captureSender) count(email string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens[email])
}

type authTestEnv struct {
	db       *gorm.DB
	auth     *AuthService
	users    repository.UserRepository
	sessions repository.SessionRepository
	links    repository.OAuthLinkRepository
	emails   *captureSender
	tokens   utils.TokenManager
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()
	db := openTestDB(t)

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	verifications := repository.NewVerificationTokenRepository(db)
	mfaSecrets := repository.NewMFASecretRepository(db)
	securityLogs := repository.NewSecurityLogRepository(db)
	links := repository.NewOAuthLinkRepository(db)

	emails := newCaptureSender()
	tokens := utils.TokenManager{
		Secret:          []byte("test-secret"),
		Issuer:          "tasclms-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}

	auth := NewAuthService(
		users,
		sessions,
		verifications,
		mfaSecrets,
		securityLogs,
		emails,
		BcryptPasswordHasher{Cost: bcrypt.MinCost},
		tokens,
		MFATokenIssuerJWT{Secret: []byte("test-secret"), Issuer: "tasclms-test"},
		NewTOTPProvider("tasclms-test"),
		RealClock{},
		AuthConfig{
			AccessTokenTTL:       time.Minute,
			RefreshTokenTTL:      time.Hour,
			VerificationTokenTTL: time.Hour,
		},
	)

	return &authTestEnv{
		db:       db,
		auth:     auth,
		users:    users,
		sessions: sessions,
		links:    links,
		emails:   emails,
		tokens:   tokens,
	}
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		Email:       email,
		Password:    "Sup3r-Secret!",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		AcceptTerms: true,
	}
}

func (env *authTestEnv) registerAndVerify(t *testing.T, email string) *entity.User {
	t.Helper()
	ctx := context.Background()
	if _, err := env.auth.Register(ctx, registerInput(email)); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := env.emails.lastToken(email)
	if token == "" {
		t.Fatalf("no verification token captured for %s", email)
	}
	user, err := env.auth.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("verify email: %v", err)
	}
	return user
}

func (env *authTestEnv) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    email,
		Password: "Sup3r-Secret!",
		DeviceID: "device-1",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return result
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, registerInput("ada@example.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.EmailVerified() {
		t.Error("new account must start unverified")
	}
	if user.IsActive {
		t.Error("new account must start inactive")
	}
	if user.Role != entity.UserRoleLearner {
		t.Errorf("role = %s, want learner", user.Role)
	}
	if user.TermsAcceptedAt == nil {
		t.Error("terms acceptance timestamp not recorded")
	}
	if env.emails.lastToken("ada@example.com") == "" {
		t.Error("verification email was not dispatched")
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	env := newAuthTestEnv(t)

	user, err := env.auth.Register(context.Background(), registerInput("  Ada@Example.COM "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email = %q, want normalized lowercase", user.Email)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	if _, err := env.auth.Register(ctx, registerInput("ada@example.com")); err != nil {
		t.Fatalf("first register: %v", err)
	}

	// The first account never verified, but the email is still claimed.
	_, err := env.auth.Register(ctx, registerInput("ada@example.com"))
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestRegisterRequiresTerms(t *testing.T) {
	env := newAuthTestEnv(t)

	input := registerInput("ada@example.com")
	input.AcceptTerms = false
	_, err := env.auth.Register(context.Background(), input)
	if !errors.Is(err, ErrTermsNotAccepted) {
		t.Fatalf("err = %v, want ErrTermsNotAccepted", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	env := newAuthTestEnv(t)

	input := registerInput("ada@example.com")
	input.Password = "alllowercase1!"
	_, err := env.auth.Register(context.Background(), input)
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
}

func TestVerifyEmailActivatesOnce(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	if _, err := env.auth.Register(ctx, registerInput("ada@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := env.emails.lastToken("ada@example.com")

	user, err := env.auth.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !user.EmailVerified() || !user.IsActive {
		t.Error("verification must flip the account to verified and active")
	}

	// Double submission of the same token activates at most once.
	if _, err := env.auth.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second verify err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := newAuthTestEnv(t)

	_, err := env.auth.VerifyEmail(context.Background(), "not-a-real-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestLoginBeforeVerification(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	if _, err := env.auth.Register(ctx, registerInput("ada@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := env.auth.Login(ctx, LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r-Secret!",
		DeviceID: "device-1",
	})
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("err = %v, want ErrEmailNotVerified", err)
	}
	if result != nil {
		t.Error("no tokens may be issued before verification")
	}
}

func TestLoginIssuesCredentialPair(t *testing.T) {
	env := newAuthTestEnv(t)
	env.registerAndVerify(t, "ada@example.com")

	result := env.login(t, "ada@example.com")
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("login must issue both tokens")
	}

	claims, err := env.auth.ValidateAccess(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if claims.Role != string(entity.UserRoleLearner) {
		t.Errorf("role claim = %q, want learner", claims.Role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newAuthTestEnv(t)
	env.registerAndVerify(t, "ada@example.com")

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Wrong-Passw0rd!",
		DeviceID: "device-1",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownEmailIsUniform(t *testing.T) {
	env := newAuthTestEnv(t)

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    "ghost@example.com",
		Password: "Sup3r-Secret!",
		DeviceID: "device-1",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginSuspendedAccount(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")

	admin := env.registerAndVerify(t, "admin@example.com")
	if err := env.auth.DeactivateUser(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := env.auth.Login(ctx, LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r-Secret!",
		DeviceID: "device-1",
	})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("err = %v, want ErrAccountInactive", err)
	}
}

func TestRefreshRotatesGeneration(t *testing.T) {
	env := newAuthTestEnv(t)
	env.registerAndVerify(t, "ada@example.com")
	first := env.login(t, "ada@example.com")

	second, err := env.auth.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("rotation must issue a new refresh token")
	}
	if second.AccessToken == "" {
		t.Error("rotation must issue a new access token")
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")
	first := env.login(t, "ada@example.com")

	second, err := env.auth.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the superseded token is treated as compromise.
	if _, err := env.auth.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("reuse err = %v, want ErrRefreshReuse", err)
	}

	// The whole lineage is dead, including the freshly rotated token.
	if _, err := env.auth.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("post-reuse refresh err = %v, want ErrInvalidToken", err)
	}

	// Access tokens already issued keep validating until natural expiry;
	// reuse detection does not reach into them.
	if _, err := env.auth.ValidateAccess(ctx, second.AccessToken); err != nil {
		t.Errorf("outstanding access token rejected: %v", err)
	}

	// A fresh login starts a new lineage for the same user.
	result := env.login(t, "ada@example.com")
	if result.RefreshToken == "" {
		t.Errorf("re-login for %s must issue a new pair", user.Email)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newAuthTestEnv(t)

	_, err := env.auth.Refresh(context.Background(), "garbage")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newAuthTestEnv(t)
	env.registerAndVerify(t, "ada@example.com")
	result := env.login(t, "ada@example.com")

	// The two token kinds are not interchangeable.
	if _, err := env.auth.Refresh(context.Background(), result.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com")
	result := env.login(t, "ada@example.com")

	claims, err := env.tokens.ParseRefreshToken(result.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	sessionID := mustParseUUID(t, claims.SessionID)

	if err := env.auth.Logout(ctx, sessionID, nil, nil); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.auth.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout err = %v, want ErrInvalidToken", err)
	}
}

func TestResendVerificationVoidsOldToken(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	if _, err := env.auth.Register(ctx, registerInput("ada@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	oldToken := env.emails.lastToken("ada@example.com")

	if err := env.auth.ResendVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	newToken := env.emails.lastToken("ada@example.com")
	if newToken == oldToken {
		t.Fatal("resend must issue a fresh token")
	}

	if _, err := env.auth.VerifyEmail(ctx, oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token err = %v, want ErrInvalidToken", err)
	}
	if _, err := env.auth.VerifyEmail(ctx, newToken); err != nil {
		t.Fatalf("new token verify: %v", err)
	}
}

func TestResendVerificationDoesNotEnumerate(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	// Unknown email: silent success, nothing dispatched.
	if err := env.auth.ResendVerification(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email resend: %v", err)
	}
	if env.emails.count("ghost@example.com") != 0 {
		t.Error("no mail may be sent to unknown addresses")
	}

	// Already verified: same silent success.
	env.registerAndVerify(t, "ada@example.com")
	sent := env.emails.count("ada@example.com")
	if err := env.auth.ResendVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("verified email resend: %v", err)
	}
	if env.emails.count("ada@example.com") != sent {
		t.Error("no mail may be sent to already-verified addresses")
	}
}

func TestDeactivateRevokesSessions(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")
	admin := env.registerAndVerify(t, "admin@example.com")
	result := env.login(t, "ada@example.com")

	if err := env.auth.DeactivateUser(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.auth.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after deactivate err = %v, want ErrInvalidToken", err)
	}
}

func TestReactivateRestoresAccess(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")
	admin := env.registerAndVerify(t, "admin@example.com")

	if err := env.auth.DeactivateUser(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := env.auth.ReactivateUser(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	env.login(t, "ada@example.com")
}

func TestReactivateRequiresVerifiedEmail(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, registerInput("ada@example.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	admin := env.registerAndVerify(t, "admin@example.com")

	// There is no administrative bypass of email verification.
	if err := env.auth.ReactivateUser(ctx, user.ID, admin.ID); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("err = %v, want ErrEmailNotVerified", err)
	}
}

func TestChangeRole(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")
	admin := env.registerAndVerify(t, "admin@example.com")

	if err := env.auth.ChangeRole(ctx, user.ID, entity.UserRoleInstructor, admin.ID); err != nil {
		t.Fatalf("change role: %v", err)
	}
	updated, err := env.users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if updated.Role != entity.UserRoleInstructor {
		t.Errorf("role = %s, want instructor", updated.Role)
	}

	if err := env.auth.ChangeRole(ctx, user.ID, entity.UserRole("emperor"), admin.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("invalid role err = %v, want ErrInvalidInput", err)
	}
}

func mustParseUUID(t *testing.T, value string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(value)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", value, err)
	}
	return id
}
