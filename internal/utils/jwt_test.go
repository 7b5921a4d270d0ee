package utils

import (
	"errors"
	"testing"
	"time"
)

func testManager() TokenManager {
	return TokenManager{
		Secret:          []byte("current-secret"),
		Issuer:          "tasclms-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := testManager()

	token, expiresIn, err := manager.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if expiresIn != time.Minute {
		t.Errorf("expiresIn = %v, want 1m", expiresIn)
	}

	claims, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "learner" || claims.SessionID != "session-1" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestRefreshTokenCarriesGeneration(t *testing.T) {
	manager := testManager()

	token, _, err := manager.IssueRefreshToken("user-1", "session-1", 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := manager.ParseRefreshToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Generation != 7 {
		t.Errorf("generation = %d, want 7", claims.Generation)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	manager := testManager()

	access, _, err := manager.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, _, err := manager.IssueRefreshToken("user-1", "session-1", 1)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := manager.ParseRefreshToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access-as-refresh err = %v, want ErrInvalidToken", err)
	}
	if _, err := manager.ParseAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh-as-access err = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredTokenIsDistinct(t *testing.T) {
	now := time.Now()
	manager := testManager()
	manager.Clock = func() time.Time { return now }

	token, _, err := manager.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.Clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := manager.ParseAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestLeewayToleratesSmallSkew(t *testing.T) {
	now := time.Now()
	manager := testManager()
	manager.Clock = func() time.Time { return now }

	token, _, err := manager.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// 10s past expiry is inside the default 30s leeway.
	manager.Clock = func() time.Time { return now.Add(time.Minute + 10*time.Second) }
	if _, err := manager.ParseAccessToken(token); err != nil {
		t.Fatalf("parse within leeway: %v", err)
	}
}

func TestPreviousSecretGraceWindow(t *testing.T) {
	old := testManager()
	old.Secret = []byte("old-secret")

	token, _, err := old.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated := testManager()
	rotated.Secret = []byte("new-secret")
	rotated.PreviousSecret = []byte("old-secret")

	if _, err := rotated.ParseAccessToken(token); err != nil {
		t.Fatalf("prior-key token rejected during grace window: %v", err)
	}

	// Without the grace key the old signature is just invalid.
	rotated.PreviousSecret = nil
	if _, err := rotated.ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	manager := testManager()

	token, _, err := manager.IssueAccessToken("user-1", "learner", "session-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := manager.ParseAccessToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
