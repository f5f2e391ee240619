package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshLeeway refreshes the access token slightly before its exp claim so
// upstream calls do not race the expiry boundary.
const refreshLeeway = 30 * time.Second

// RefreshFunc exchanges a refresh token for a new token pair
type RefreshFunc func(ctx context.Context, refreshToken string) (access string, refresh string, err error)

// TokenSource holds the user's platform token pair for one checkout session.
// It hands out the current access token, refreshing it ahead of expiry, and
// serializes refreshes so a burst of 401s triggers a single refresh call.
type TokenSource struct {
	mu        sync.Mutex
	access    string
	refresh   string
	expiresAt time.Time
	refreshFn RefreshFunc
}

// NewTokenSource creates a token source from the pair the app presented
func NewTokenSource(access, refresh string, refreshFn RefreshFunc) *TokenSource {
	return &TokenSource{
		access:    access,
		refresh:   refresh,
		expiresAt: expiryOf(access),
		refreshFn: refreshFn,
	}
}

// Token returns a usable access token, refreshing first if the current one
// is at or past its exp claim
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.staleLocked() {
		return ts.refreshLocked(ctx)
	}
	return ts.access, nil
}

// Invalidate reports that the upstream rejected the given token with a 401
// and returns a replacement. If another caller already refreshed, the new
// token is returned without a second refresh call.
func (ts *TokenSource) Invalidate(ctx context.Context, rejected string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if rejected != "" && rejected != ts.access {
		// already rotated by a concurrent caller
		return ts.access, nil
	}
	return ts.refreshLocked(ctx)
}

func (ts *TokenSource) staleLocked() bool {
	if ts.expiresAt.IsZero() {
		// opaque token, no exp claim to read; rely on 401-triggered refresh
		return false
	}
	return time.Now().After(ts.expiresAt.Add(-refreshLeeway))
}

func (ts *TokenSource) refreshLocked(ctx context.Context) (string, error) {
	if ts.refreshFn == nil {
		return "", fmt.Errorf("access token expired and no refresh is configured")
	}
	if ts.refresh == "" {
		return "", fmt.Errorf("access token expired and no refresh token is held")
	}

	access, refresh, err := ts.refreshFn(ctx, ts.refresh)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	ts.access = access
	if refresh != "" {
		ts.refresh = refresh
	}
	ts.expiresAt = expiryOf(access)
	return ts.access, nil
}

// expiryOf reads the exp claim without verifying the signature; the platform
// signed the token and this service only needs the expiry hint. A token that
// is not a JWT yields a zero time.
func expiryOf(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// PlatformRefresher builds a RefreshFunc against the platform's auth refresh
// endpoint
func PlatformRefresher(baseURL string, httpClient *http.Client) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (string, string, error) {
		body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal refresh request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/auth/refresh-token", bytes.NewBuffer(body))
		if err != nil {
			return "", "", fmt.Errorf("failed to create refresh request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", "", fmt.Errorf("failed to execute refresh request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", "", fmt.Errorf("failed to read refresh response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", "", fmt.Errorf("refresh rejected: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		var parsed struct {
			Data struct {
				AccessToken  string `json:"accessToken"`
				RefreshToken string `json:"refreshToken"`
			} `json:"data"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", "", fmt.Errorf("failed to unmarshal refresh response: %w", err)
		}
		if parsed.Data.AccessToken == "" {
			return "", "", fmt.Errorf("refresh response missing access token")
		}

		return parsed.Data.AccessToken, parsed.Data.RefreshToken, nil
	}
}
