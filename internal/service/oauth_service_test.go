package service

import (
	"context"
	"errors"
	"testing"

	"tasclms/internal/entity"
	"tasclms/internal/repository"
)

// stubVerifier returns a canned identity without calling any provider.
type stubVerifier struct {
	identity *ProviderIdentity
	err      error
}

func (v *stubVerifier) Verify(ctx context.Context, idToken string) (*ProviderIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func googleIdentity(subject, email string) *ProviderIdentity {
	return &ProviderIdentity{
		Provider:      entity.ProviderGoogle,
		SubjectID:     subject,
		Email:         email,
		EmailVerified: true,
		GivenName:     "Grace",
		FamilyName:    "Hopper",
		Picture:       "https://example.com/avatar.png",
	}
}

func newOAuthTestEnv(t *testing.T, verifier ProviderVerifier) (*authTestEnv, *OAuthService) {
	t.Helper()
	env := newAuthTestEnv(t)
	oauth := NewOAuthService(
		env.users,
		env.links,
		repository.NewSecurityLogRepository(env.db),
		map[entity.OAuthProvider]ProviderVerifier{entity.ProviderGoogle: verifier},
		env.auth,
		RealClock{},
	)
	return env, oauth
}

func signInInput() SignInInput {
	return SignInInput{
		Provider: entity.ProviderGoogle,
		IDToken:  "stub-token",
		DeviceID: "device-1",
	}
}

func TestOAuthSignInCreatesActiveAccount(t *testing.T) {
	_, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})

	result, err := oauth.SignIn(context.Background(), signInInput())
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !result.IsNewUser {
		t.Error("first sign-in must report a new user")
	}
	// Provider-verified email skips local verification entirely.
	if !result.User.EmailVerified() || !result.User.IsActive {
		t.Error("provider sign-up must enter the lifecycle verified and active")
	}
	if result.User.Role != entity.UserRoleLearner {
		t.Errorf("role = %s, want learner", result.User.Role)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Error("sign-in must issue the credential pair")
	}
}

func TestOAuthSignInResolvesExistingLink(t *testing.T) {
	_, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	ctx := context.Background()

	first, err := oauth.SignIn(ctx, signInInput())
	if err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	second, err := oauth.SignIn(ctx, signInInput())
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if second.IsNewUser {
		t.Error("second sign-in must not create a new account")
	}
	if second.User.ID != first.User.ID {
		t.Error("link must resolve to the original account")
	}
}

func TestOAuthSignInClaimedEmailNeedsExplicitLink(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "ada@example.com")})
	env.registerAndVerify(t, "ada@example.com")

	// No silent account merge on email match.
	_, err := oauth.SignIn(context.Background(), signInInput())
	if !errors.Is(err, ErrAccountExistsNeedsLink) {
		t.Fatalf("err = %v, want ErrAccountExistsNeedsLink", err)
	}
}

func TestOAuthSignInUnverifiedProviderEmail(t *testing.T) {
	identity := googleIdentity("sub-1", "grace@example.com")
	identity.EmailVerified = false
	_, oauth := newOAuthTestEnv(t, &stubVerifier{identity: identity})

	_, err := oauth.SignIn(context.Background(), signInInput())
	if !errors.Is(err, ErrInvalidProviderToken) {
		t.Fatalf("err = %v, want ErrInvalidProviderToken", err)
	}
}

func TestOAuthSignInProviderOutage(t *testing.T) {
	_, oauth := newOAuthTestEnv(t, &stubVerifier{err: ErrProviderUnavailable})

	// An unreachable provider is an outage, never a grant.
	_, err := oauth.SignIn(context.Background(), signInInput())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestOAuthSignInSuspendedAccount(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	ctx := context.Background()

	result, err := oauth.SignIn(ctx, signInInput())
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	admin := env.registerAndVerify(t, "admin@example.com")
	if err := env.auth.DeactivateUser(ctx, result.User.ID, admin.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := oauth.SignIn(ctx, signInInput()); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("err = %v, want ErrAccountInactive", err)
	}
}

func TestOAuthLinkAttachesProvider(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "ada-side@example.com")})
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")

	link, err := oauth.Link(ctx, user.ID, entity.ProviderGoogle, "stub-token")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if link.Provider != entity.ProviderGoogle || link.ProviderSubjectID != "sub-1" {
		t.Errorf("unexpected link %+v", link)
	}

	links, err := oauth.Status(ctx, user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("status reported %d links, want 1", len(links))
	}
}

func TestOAuthLinkSubjectClaimedByOther(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	ctx := context.Background()

	// sub-1 belongs to the OAuth-created account.
	if _, err := oauth.SignIn(ctx, signInInput()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	other := env.registerAndVerify(t, "ada@example.com")

	if _, err := oauth.Link(ctx, other.ID, entity.ProviderGoogle, "stub-token"); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("err = %v, want ErrAlreadyLinked", err)
	}
}

func TestOAuthLinkDuplicateProviderForUser(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")

	if _, err := oauth.Link(ctx, user.ID, entity.ProviderGoogle, "stub-token"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if _, err := oauth.Link(ctx, user.ID, entity.ProviderGoogle, "stub-token"); !errors.Is(err, ErrDuplicateProvider) {
		t.Fatalf("err = %v, want ErrDuplicateProvider", err)
	}
}

func TestOAuthUnlinkKeepsLastAuthMethod(t *testing.T) {
	_, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	ctx := context.Background()

	result, err := oauth.SignIn(ctx, signInInput())
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	// The account has no password; removing its only link would lock it out.
	err = oauth.Unlink(ctx, result.User.ID, entity.ProviderGoogle)
	if !errors.Is(err, ErrLastAuthMethod) {
		t.Fatalf("err = %v, want ErrLastAuthMethod", err)
	}

	links, err := oauth.Status(ctx, result.User.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(links) != 1 {
		t.Fatal("refused unlink must leave the link intact")
	}
}

func TestOAuthUnlinkWithPasswordSet(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "side@example.com")})
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com")

	if _, err := oauth.Link(ctx, user.ID, entity.ProviderGoogle, "stub-token"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := oauth.Unlink(ctx, user.ID, entity.ProviderGoogle); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	links, err := oauth.Status(ctx, user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("status reported %d links, want 0", len(links))
	}
}

func TestOAuthUnlinkMissingLink(t *testing.T) {
	env, oauth := newOAuthTestEnv(t, &stubVerifier{identity: googleIdentity("sub-1", "grace@example.com")})
	user := env.registerAndVerify(t, "ada@example.com")

	err := oauth.Unlink(context.Background(), user.ID, entity.ProviderGoogle)
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("err = %v, want ErrLinkNotFound", err)
	}
}
