package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

// IdentityProvider is the identity oracle the issuance and recovery
// flows consume: lookup by email, synchronous account creation, and a
// one-time login token for accounts created mid-checkout.
type IdentityProvider interface {
	GetUserByEmail(ctx context.Context, email string) (string, error)
	CreateUser(ctx context.Context, email, password, displayName string) (string, error)
	CreateLoginToken(ctx context.Context, uid string) (string, error)
}

// KeycloakProvider implements IdentityProvider against the Keycloak
// admin REST API, authenticated with the service's M2M token.
type KeycloakProvider struct {
	Config models.KeycloakConfig
	Client *http.Client
	Cache  *RedisTokenCache
}

func NewKeycloakProvider(cfg models.KeycloakConfig, client *http.Client, cache *RedisTokenCache) *KeycloakProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeycloakProvider{Config: cfg, Client: client, Cache: cache}
}

type keycloakUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (p *KeycloakProvider) adminRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := GetM2MToken(ctx, p.Config, p.Client, p.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to get M2M token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s%s", p.Config.URL, p.Config.Realm, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *KeycloakProvider) GetUserByEmail(ctx context.Context, email string) (string, error) {
	query := url.Values{}
	query.Set("email", strings.ToLower(email))
	query.Set("exact", "true")

	req, err := p.adminRequest(ctx, http.MethodGet, "/users?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user lookup failed with status %d", resp.StatusCode)
	}

	var users []keycloakUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return "", fmt.Errorf("decode user lookup response: %w", err)
	}
	if len(users) == 0 {
		return "", errs.E(errs.NotFound, fmt.Sprintf("no account registered for %s", email))
	}
	return users[0].ID, nil
}

func (p *KeycloakProvider) CreateUser(ctx context.Context, email, password, displayName string) (string, error) {
	payload := map[string]interface{}{
		"username":      strings.ToLower(email),
		"email":         strings.ToLower(email),
		"firstName":     displayName,
		"enabled":       true,
		"emailVerified": false,
		"credentials": []map[string]interface{}{
			{"type": "password", "value": password, "temporary": false},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := p.adminRequest(ctx, http.MethodPost, "/users", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create user failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create user failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	// Keycloak returns the new user's location header, not a body.
	location := resp.Header.Get("Location")
	if idx := strings.LastIndex(location, "/"); idx >= 0 && idx < len(location)-1 {
		return location[idx+1:], nil
	}

	// Fall back to a lookup when the header is missing.
	return p.GetUserByEmail(ctx, email)
}

// CreateLoginToken exchanges the service credentials for a token issued
// on behalf of the given user, so a checkout-created account can be
// logged in without a second password prompt.
func (p *KeycloakProvider) CreateLoginToken(ctx context.Context, uid string) (string, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", p.Config.URL, p.Config.Realm)

	data := url.Values{}
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:token-exchange")
	data.Set("client_id", p.Config.ClientID)
	data.Set("client_secret", p.Config.ClientSecret)
	data.Set("requested_subject", uid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token exchange response: %w", err)
	}
	return tokenResp.AccessToken, nil
}
