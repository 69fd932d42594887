package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// tokenSource holds the bearer token for the platform backend and refreshes
// it on demand. Concurrent refreshes are coalesced with singleflight: when
// several requests hit a 401 at once, one refresh call runs and every
// caller waits for its result.
type tokenSource struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	logger       *zap.Logger

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

func newTokenSource(httpClient *http.Client, baseURL, clientID, clientSecret string, logger *zap.Logger) *tokenSource {
	return &tokenSource{
		httpClient:   httpClient,
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
	}
}

// Current returns the token as-is; it may be empty or stale, in which case
// the first request answers 401 and triggers a refresh.
func (t *tokenSource) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh obtains a new token, coalescing concurrent calls.
func (t *tokenSource) Refresh(ctx context.Context) (string, error) {
	v, err, shared := t.group.Do("token", func() (any, error) {
		return t.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		t.logger.Debug("platform: token refresh shared with concurrent caller")
	}
	return v.(string), nil
}

func (t *tokenSource) fetchToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     t.clientID,
		"client_secret": t.clientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/auth/token", t.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Warn("platform: token endpoint rejected refresh",
			zap.Int("status", resp.StatusCode),
		)
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	t.mu.Lock()
	t.token = out.AccessToken
	t.mu.Unlock()

	t.logger.Info("platform: access token refreshed")
	return out.AccessToken, nil
}
