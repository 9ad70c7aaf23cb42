package hanet

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// storageBuffer is subtracted from expires_in when the token is cached;
	// readMargin is applied again when the cached value is read. The double
	// margin survives clock skew and slow upstream calls.
	storageBuffer = 60 * time.Second
	readMargin    = 10 * time.Second

	defaultExpiresIn = 3600 // seconds, when upstream omits expires_in
)

// TokenCache owns one cached HANET access token per tenant. It refreshes
// lazily via the OAuth refresh_token grant and coalesces concurrent
// refreshes so N expired callers trigger exactly one upstream call.
type TokenCache struct {
	http         *resty.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	logger       zerolog.Logger

	group singleflight.Group

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

// NewTokenCache creates a token cache for one tenant's credentials.
func NewTokenCache(tokenURL, clientID, clientSecret, refreshToken string, logger zerolog.Logger) *TokenCache {
	return &TokenCache{
		http:         resty.New().SetTimeout(10 * time.Second),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		logger:       logger.With().Str("component", "token_cache").Logger(),
	}
}

type tokenResponse struct {
	AccessToken   string `json:"access_token"`
	ExpiresIn     int64  `json:"expires_in"`
	RefreshToken  string `json:"refresh_token"`
	ReturnMessage string `json:"returnMessage"`
}

// Token returns a valid access token, refreshing when the cached one is
// missing or inside the expiry margin. The cached fast path makes no
// network call.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.RLock()
	token, expiresAt := tc.accessToken, tc.expiresAt
	tc.mu.RUnlock()

	if token != "" && time.Now().Before(expiresAt.Add(-readMargin)) {
		return token, nil
	}

	v, err, _ := tc.group.Do("refresh", func() (interface{}, error) {
		// Another waiter may have refreshed while this caller queued.
		tc.mu.RLock()
		token, expiresAt := tc.accessToken, tc.expiresAt
		tc.mu.RUnlock()
		if token != "" && time.Now().Before(expiresAt.Add(-readMargin)) {
			return token, nil
		}
		return tc.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (tc *TokenCache) refresh(ctx context.Context) (string, error) {
	if tc.tokenURL == "" || tc.clientID == "" || tc.clientSecret == "" || tc.refreshToken == "" {
		return "", &AuthError{Message: "incomplete credential configuration"}
	}

	tc.logger.Info().Msg("refreshing access token")

	resp, err := tc.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     tc.clientID,
			"client_secret": tc.clientSecret,
			"refresh_token": tc.refreshToken,
		}).
		Post(tc.tokenURL)
	if err != nil {
		tc.clear()
		return "", &AuthError{Message: "token endpoint unreachable", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		tc.clear()
		return "", &AuthError{Message: "token endpoint returned HTTP " + resp.Status()}
	}

	// Decode by hand: the token endpoint does not reliably set a JSON
	// Content-Type, which resty's automatic unmarshal depends on.
	var body tokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		tc.clear()
		return "", &AuthError{Message: "undecodable token response", Err: err}
	}
	if body.AccessToken == "" {
		tc.clear()
		msg := body.ReturnMessage
		if msg == "" {
			msg = "response missing access_token"
		}
		return "", &AuthError{Message: msg}
	}

	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	if body.RefreshToken != "" && body.RefreshToken != tc.refreshToken {
		// Upstream rotated the refresh token. Keep using the configured one;
		// the operator has to update the environment by hand.
		tc.logger.Warn().Msg("upstream issued a new refresh token, still using the configured value")
	}

	tc.mu.Lock()
	tc.accessToken = body.AccessToken
	tc.expiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - storageBuffer)
	tc.mu.Unlock()

	tc.logger.Info().
		Str("token_prefix", tokenPrefix(body.AccessToken)).
		Int64("expires_in", expiresIn).
		Msg("access token refreshed")

	return body.AccessToken, nil
}

// clear drops the cached token so the next caller retries a refresh instead
// of reusing a value that just failed.
func (tc *TokenCache) clear() {
	tc.mu.Lock()
	tc.accessToken = ""
	tc.expiresAt = time.Time{}
	tc.mu.Unlock()
}

// tokenPrefix returns a short loggable prefix; full tokens never reach logs.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
