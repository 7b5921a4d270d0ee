package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func tokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") == "" {
			t.Error("id_token query parameter missing")
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	server := tokenInfoServer(t, http.StatusOK, `{
		"sub": "sub-1",
		"aud": "client-id",
		"email": "grace@example.com",
		"email_verified": "true",
		"given_name": "Grace",
		"family_name": "Hopper",
		"picture": "https://example.com/avatar.png"
	}`)
	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = server.URL

	identity, err := verifier.Verify(context.Background(), "stub-token")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.SubjectID != "sub-1" || identity.Email != "grace@example.com" {
		t.Errorf("unexpected identity %+v", identity)
	}
	if !identity.EmailVerified {
		t.Error("email_verified \"true\" must map to a verified identity")
	}
}

func TestGoogleVerifierRejectsAudienceMismatch(t *testing.T) {
	server := tokenInfoServer(t, http.StatusOK, `{
		"sub": "sub-1",
		"aud": "someone-else",
		"email": "grace@example.com",
		"email_verified": "true"
	}`)
	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = server.URL

	_, err := verifier.Verify(context.Background(), "stub-token")
	if !errors.Is(err, ErrInvalidProviderToken) {
		t.Fatalf("err = %v, want ErrInvalidProviderToken", err)
	}
}

func TestGoogleVerifierRejectsBadToken(t *testing.T) {
	server := tokenInfoServer(t, http.StatusBadRequest, `{"error":"invalid_token"}`)
	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = server.URL

	_, err := verifier.Verify(context.Background(), "stub-token")
	if !errors.Is(err, ErrInvalidProviderToken) {
		t.Fatalf("err = %v, want ErrInvalidProviderToken", err)
	}
}

func TestGoogleVerifierOutage(t *testing.T) {
	server := tokenInfoServer(t, http.StatusInternalServerError, "")
	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = server.URL

	_, err := verifier.Verify(context.Background(), "stub-token")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestGoogleVerifierUnreachable(t *testing.T) {
	server := tokenInfoServer(t, http.StatusOK, "{}")
	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = server.URL
	server.Close()

	_, err := verifier.Verify(context.Background(), "stub-token")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}
