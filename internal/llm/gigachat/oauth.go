package gigachat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenURL is the GigaChat OAuth2 token endpoint.
	DefaultTokenURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"

	// DefaultScope is the OAuth scope for personal API access.
	DefaultScope = "GIGACHAT_API_PERS"

	// defaultExpiresIn applies when the token response omits expires_in.
	defaultExpiresIn = 1800 * time.Second

	// DefaultTokenSafetyMargin is subtracted from the token lifetime so a
	// credential is refreshed before the provider rejects it.
	DefaultTokenSafetyMargin = 60 * time.Second
)

// credential is an immutable bearer token snapshot. It is replaced as a
// whole on refresh, never mutated.
type credential struct {
	accessToken string
	expiresAt   time.Time
}

// valid reports whether the credential is usable at time now, honoring the
// safety margin.
func (c *credential) valid(now time.Time, margin time.Duration) bool {
	return c != nil && c.accessToken != "" && now.Before(c.expiresAt.Add(-margin))
}

// TokenManager acquires and caches a GigaChat OAuth2 credential using the
// client-credentials flow. Readers take an atomic snapshot; concurrent
// refreshes collapse into one network call via singleflight.
type TokenManager struct {
	clientID     string
	clientSecret string
	scope        string
	tokenURL     string
	safetyMargin time.Duration
	httpClient   *http.Client

	current atomic.Pointer[credential]
	flight  singleflight.Group

	// refreshCount is exposed for tests; incremented per network refresh.
	refreshCount atomic.Int64

	now func() time.Time
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string
	SafetyMargin time.Duration
	HTTPClient   *http.Client
}

// NewTokenManager creates a TokenManager with the given configuration.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultTokenSafetyMargin
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		tokenURL:     cfg.TokenURL,
		safetyMargin: cfg.SafetyMargin,
		httpClient:   cfg.HTTPClient,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing it if the cached one is
// absent or expiring. Concurrent callers that observe an invalid credential
// share a single refresh call and its result.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if cred := m.current.Load(); cred.valid(m.now(), m.safetyMargin) {
		return cred.accessToken, nil
	}

	v, err, _ := m.flight.Do("refresh", func() (any, error) {
		// Another caller may have completed the refresh while we queued.
		if cred := m.current.Load(); cred.valid(m.now(), m.safetyMargin) {
			return cred.accessToken, nil
		}

		cred, err := m.requestToken(ctx)
		if err != nil {
			return "", err
		}
		// The new credential is installed before the old snapshot becomes
		// unreachable, so readers never observe an empty slot.
		m.current.Store(cred)
		return cred.accessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached credential so the next Token call performs
// a refresh. Called when the provider rejects a token that looked valid.
func (m *TokenManager) Invalidate() {
	m.current.Store(nil)
}

// RefreshCount returns the number of token endpoint calls made so far.
func (m *TokenManager) RefreshCount() int64 {
	return m.refreshCount.Load()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// requestToken performs one client-credentials exchange against the token
// endpoint. Failures are reported as KindAuth and never retried here; the
// executor owns retry policy.
func (m *TokenManager) requestToken(ctx context.Context) (*credential, error) {
	m.refreshCount.Add(1)

	form := url.Values{"scope": {m.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindAuth, Msg: "building token request", Cause: err}
	}
	req.SetBasicAuth(m.clientID, m.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("RqUID", uuid.New().String())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Msg: "token request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{
			Kind:   KindAuth,
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("token endpoint rejected request: %s", strings.TrimSpace(string(body))),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &Error{Kind: KindAuth, Msg: "decoding token response", Cause: err}
	}
	if tr.AccessToken == "" {
		return nil, &Error{Kind: KindAuth, Msg: "token response missing access_token"}
	}

	expiresIn := defaultExpiresIn
	if tr.ExpiresIn > 0 {
		expiresIn = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &credential{
		accessToken: tr.AccessToken,
		expiresAt:   m.now().Add(expiresIn),
	}, nil
}
