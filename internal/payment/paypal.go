// Package payment wraps the PayPal Orders v2 API as the service's
// payment confirmation collaborator.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

// Processor confirms an approved payment order. Capture must be safe to
// retry: a second capture of the same order reports COMPLETED rather
// than failing.
type Processor interface {
	Capture(ctx context.Context, orderID string) (*models.CaptureResult, error)
}

type PayPalClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
	Cache        *auth.RedisTokenCache
}

func NewPayPalClient(baseURL, clientID, clientSecret string, httpClient *http.Client, cache *auth.RedisTokenCache) *PayPalClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PayPalClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTP:         httpClient,
		Cache:        cache,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if c.Cache != nil {
		if cached, err := c.Cache.GetToken(ctx); err == nil && cached.IsValid() {
			return cached.Token, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("paypal token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode paypal token response: %w", err)
	}

	if c.Cache != nil {
		_ = c.Cache.SetToken(ctx, token.AccessToken, token.ExpiresIn)
	}

	return token.AccessToken, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type captureError struct {
	Name    string `json:"name"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// Capture confirms the approved order with PayPal. An order that was
// already captured (a retried call) reports COMPLETED so the caller's
// own order-id guard decides what to do.
func (c *PayPalClient) Capture(ctx context.Context, orderID string) (*models.CaptureResult, error) {
	if orderID == "" {
		return nil, errs.E(errs.InvalidInput, "order id is required")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	captureURL := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.BaseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, captureURL, strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal capture request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read paypal capture response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var captured captureResponse
		if err := json.Unmarshal(body, &captured); err != nil {
			return nil, fmt.Errorf("decode paypal capture response: %w", err)
		}
		result := &models.CaptureResult{Status: captured.Status}
		if len(captured.PurchaseUnits) > 0 && len(captured.PurchaseUnits[0].Payments.Captures) > 0 {
			result.CaptureID = captured.PurchaseUnits[0].Payments.Captures[0].ID
		}
		return result, nil

	case http.StatusNotFound:
		return nil, errs.E(errs.NotFound, fmt.Sprintf("payment order %s not found", orderID))

	case http.StatusUnprocessableEntity:
		var capErr captureError
		_ = json.Unmarshal(body, &capErr)
		for _, d := range capErr.Details {
			if d.Issue == "ORDER_ALREADY_CAPTURED" {
				return &models.CaptureResult{Status: models.PaymentCompleted}, nil
			}
		}
		return nil, errs.E(errs.PaymentNotCompleted, "payment was not approved for capture")

	default:
		return nil, fmt.Errorf("paypal capture failed with status %d: %s", resp.StatusCode, string(body))
	}
}
