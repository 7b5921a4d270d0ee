package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tasclms/internal/entity"
)

const googleTokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// GoogleVerifier validates Google ID tokens against the tokeninfo endpoint
// and extracts the claim set needed for sign-in and linking. Provider
// outages and timeouts surface as ErrProviderUnavailable so callers can
// retry; they are never converted into a grant.
type GoogleVerifier struct {
	ClientID   string
	HTTPClient *http.Client
	Endpoint   string
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		ClientID:   clientID,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Endpoint:   googleTokenInfoEndpoint,
	}
}

type googleTokenInfo struct {
	Subject       string `json:"sub"`
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*ProviderIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidProviderToken
	}

	endpoint := v.Endpoint
	if endpoint == "" {
		endpoint = googleTokenInfoEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := url.Values{}
	query.Set("id_token", idToken)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	client := v.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	defer response.Body.Close()

	if response.StatusCode >= 500 {
		return nil, ErrProviderUnavailable
	}
	if response.StatusCode != http.StatusOK {
		return nil, ErrInvalidProviderToken
	}

	var info googleTokenInfo
	if err := json.NewDecoder(response.Body).Decode(&info); err != nil {
		return nil, ErrInvalidProviderToken
	}

	// Reject tokens minted for a different application.
	if v.ClientID != "" && info.Audience != v.ClientID {
		return nil, ErrInvalidProviderToken
	}
	if info.Subject == "" || info.Email == "" {
		return nil, ErrInvalidProviderToken
	}

	return &ProviderIdentity{
		Provider:      entity.ProviderGoogle,
		SubjectID:     info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified == "true",
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
	}, nil
}
