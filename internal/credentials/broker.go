package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Broker is the session-acquisition backend: an external collaborator that
// hands out opaque tokens. HTTPBroker is the only
// implementation; the interface exists so tests can substitute a fake.
type Broker interface {
	// Allocate acquires one fresh session, returning its access token and the
	// session id used to release or mark it blocked.
	Allocate(ctx context.Context) (token string, sessionID string, err error)
	Release(ctx context.Context, sessionID string) error
	MarkBlocked(ctx context.Context, token string) error
}

// BrokerConfig configures an HTTPBroker.
type BrokerConfig struct {
	// BaseURL is the session broker's base URL, e.g. https://broker.example.com.
	BaseURL string
	// RefreshURL exchanges a refresh_token for an access_token.
	RefreshURL string
	// APIKey authenticates this proxy instance to the session broker itself
	// (distinct from the per-session access tokens Allocate hands back). Sent
	// as a bearer token on every broker call; empty skips the header for
	// brokers that don't require one.
	APIKey string
	// ClientVersion, OSCategory, OSName, OSVersion are sent as headers on the
	// refresh exchange, matching the upstream's expected client identity.
	ClientVersion string
	OSCategory    string
	OSName        string
	OSVersion     string
}

// HTTPBroker talks to the session broker over HTTP:
// POST {base}/api/accounts/allocate {count:1}
// POST {base}/api/accounts/release {session_id}
// POST {base}/api/accounts/mark_blocked {jwt_token?}
// plus a separate refresh endpoint exchanging refresh_token for access_token
// via application/x-www-form-urlencoded.
type HTTPBroker struct {
	cfg    BrokerConfig
	client *http.Client
}

var _ Broker = (*HTTPBroker)(nil)

// NewHTTPBroker constructs an HTTPBroker. client.Timeout should be bounded
// (a 30s session-broker HTTP timeout); the zero value for client
// selects a 30s-timeout http.Client.
func NewHTTPBroker(cfg BrokerConfig, client *http.Client) *HTTPBroker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPBroker{cfg: cfg, client: client}
}

type allocateRequest struct {
	Count int `json:"count"`
}

type allocateResponse struct {
	Success  bool `json:"success"`
	Accounts []struct {
		Email        string `json:"email"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
	} `json:"accounts"`
	SessionID string `json:"session_id"`
}

// Allocate acquires one account from the broker and exchanges its refresh
// token for an access token via the refresh endpoint.
func (b *HTTPBroker) Allocate(ctx context.Context) (string, string, error) {
	var alloc allocateResponse
	if err := b.postJSON(ctx, b.cfg.BaseURL+"/api/accounts/allocate", allocateRequest{Count: 1}, &alloc); err != nil {
		return "", "", fmt.Errorf("credentials: allocate: %w", err)
	}
	if !alloc.Success || len(alloc.Accounts) == 0 {
		return "", "", fmt.Errorf("credentials: allocate: broker returned no accounts")
	}

	account := alloc.Accounts[0]
	refreshToken := account.RefreshToken
	if refreshToken == "" {
		refreshToken = account.IDToken
	}
	if refreshToken == "" {
		return "", "", fmt.Errorf("credentials: allocate: account %s has no refresh or id token", account.Email)
	}

	accessToken, err := b.exchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("credentials: allocate: exchanging refresh token: %w", err)
	}

	return accessToken, alloc.SessionID, nil
}

func (b *HTTPBroker) Release(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	req := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sessionID}
	return b.postJSON(ctx, b.cfg.BaseURL+"/api/accounts/release", req, nil)
}

// MarkBlocked is best-effort: failures are returned but callers should not
// treat them as fatal, matching the original's "best-effort" contract.
func (b *HTTPBroker) MarkBlocked(ctx context.Context, token string) error {
	req := struct {
		JWTToken string `json:"jwt_token,omitempty"`
	}{JWTToken: token}
	return b.postJSON(ctx, b.cfg.BaseURL+"/api/accounts/mark_blocked", req, nil)
}

func (b *HTTPBroker) postJSON(ctx context.Context, target string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// exchangeRefreshToken performs the application/x-www-form-urlencoded
// grant_type=refresh_token exchange.
func (b *HTTPBroker) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	body := strings.NewReader(form.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.RefreshURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if b.cfg.ClientVersion != "" {
		req.Header.Set("x-warp-client-version", b.cfg.ClientVersion)
	}
	if b.cfg.OSCategory != "" {
		req.Header.Set("x-warp-os-category", b.cfg.OSCategory)
	}
	if b.cfg.OSName != "" {
		req.Header.Set("x-warp-os-name", b.cfg.OSName)
	}
	if b.cfg.OSVersion != "" {
		req.Header.Set("x-warp-os-version", b.cfg.OSVersion)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("refresh endpoint returned no access_token")
	}
	return tokenResp.AccessToken, nil
}
