package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-boxoffice/internal/models"
)

// GetM2MToken retrieves a machine-to-machine token for the service
// client, preferring the Redis cache over a round-trip to Keycloak.
func GetM2MToken(ctx context.Context, cfg models.KeycloakConfig, client *http.Client, cache *RedisTokenCache) (string, error) {
	if cache != nil {
		if cached, err := cache.GetToken(ctx); err == nil && cached.IsValid() {
			return cached.Token, nil
		}
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", cfg.URL, cfg.Realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to get token, status %s: %s", resp.Status, string(body))
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	if cache != nil {
		_ = cache.SetToken(ctx, tokenResp.AccessToken, tokenResp.ExpiresIn)
	}

	return tokenResp.AccessToken, nil
}
