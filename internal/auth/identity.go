package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Credential is a provider bearer credential issued by the identity service.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// IdentityClient exchanges OAuth callback grants for provider credentials.
// Token acquisition and refresh live entirely in the identity service;
// this client only fetches the result.
type IdentityClient struct {
	baseURL string
	client  *http.Client
}

func NewIdentityClient(identityURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: identityURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an OAuth authorization code for a provider credential.
func (c *IdentityClient) Exchange(ctx context.Context, provider, code string) (*Credential, error) {
	endpoint := fmt.Sprintf("%s/api/identity/%s/token", c.baseURL, provider)
	form := url.Values{"code": {code}}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no %s account connected", provider)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Credential{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Expiry:       time.Unix(result.ExpiresAt, 0),
	}, nil
}
