package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/config"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// TokenProvider supplies the bearer token attached to every platform call.
// Invalidate is called after an upstream 401 with the rejected token and
// must return a replacement.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context, rejected string) (string, error)
}

// Client talks to the storefront platform's REST API on behalf of one user
// session
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a platform client bound to a user's token source
func NewClient(cfg config.PlatformConfig, tokens TokenProvider, logger *zap.Logger) *Client {
	// Normalize base URL - remove trailing slashes
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// envelope is the platform's REST response wrapper
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do executes one platform call, attaching the bearer token and retrying
// exactly once after a 401 with a refreshed token. On success the envelope's
// data field is decoded into out (out may be nil).
func (c *Client) do(ctx context.Context, operation, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return &errors.ErrUpstream{Operation: operation, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		token, err = c.tokens.Invalidate(ctx, token)
		if err != nil {
			return &errors.ErrUpstream{Operation: operation, Status: http.StatusUnauthorized, Message: err.Error()}
		}
		resp, err = c.send(ctx, method, path, body, token)
		if err != nil {
			return &errors.ErrUpstream{Operation: operation, Message: err.Error()}
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.ErrUpstream{Operation: operation, Status: resp.StatusCode, Message: "failed to read response body"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		c.logger.Warn("platform call failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &errors.ErrUpstream{Operation: operation, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &errors.ErrUpstream{Operation: operation, Status: resp.StatusCode, Message: "failed to unmarshal response envelope"}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &errors.ErrUpstream{Operation: operation, Status: resp.StatusCode, Message: "failed to unmarshal response data"}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.httpClient.Do(req)
}
