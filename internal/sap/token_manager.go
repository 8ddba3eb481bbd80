// Package sap talks to the upstream ERP's OData interface.  Every
// state-changing call needs an anti-forgery (CSRF) token plus the
// session cookies handed out by the token endpoint; this file owns
// fetching, caching and invalidating that pair.
package sap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// validityBuffer is subtracted from the cached expiry when deciding
// whether the token is still usable, so a request never leaves with a
// token about to lapse mid-flight.
const validityBuffer = 5 * time.Minute

// Token is the pair attached to mutating upstream requests.
type Token struct {
	Value   string
	Cookies string
}

// TokenInfo is a read-only diagnostic snapshot for the health endpoint.
type TokenInfo struct {
	HasToken   bool       `json:"hasToken"`
	HasCookies bool       `json:"hasCookies"`
	IsValid    bool       `json:"isValid"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	ExpiresIn  int64      `json:"expiresIn"` // milliseconds, floored at zero
}

// TokenManagerConfig carries the upstream token endpoint settings.
type TokenManagerConfig struct {
	TokenURL      string        // absolute URL of the token-fetch endpoint
	Username      string        // basic-auth user
	Password      string        // basic-auth password
	ClientID      string        // value of the sap-client header
	CacheDuration time.Duration // how long a fetched token is cached
}

// TokenManager caches one token+cookie pair.  The three cached fields
// are always set or cleared together, and concurrent callers that find
// the cache stale share a single upstream fetch via singleflight.
type TokenManager struct {
	cfg    TokenManagerConfig
	client *http.Client
	log    *logrus.Entry
	now    func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	token   string
	cookies string
	expiry  time.Time
}

// NewTokenManager builds a manager over the given HTTP client.  The
// client's TLS and timeout settings are the caller's responsibility so
// the manager and the gateway can share one transport.
func NewTokenManager(cfg TokenManagerConfig, client *http.Client, log *logrus.Logger) *TokenManager {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = time.Hour
	}
	return &TokenManager{
		cfg:    cfg,
		client: client,
		log:    log.WithField("component", "csrf"),
		now:    time.Now,
	}
}

// Get returns the cached token when it is still valid, joins an
// in-flight refresh when one is running, and otherwise starts a
// refresh.  All concurrent callers of a single refresh observe the
// same outcome; the upstream endpoint is hit exactly once.
func (m *TokenManager) Get(ctx context.Context) (Token, error) {
	m.mu.RLock()
	if m.validLocked() {
		t := Token{Value: m.token, Cookies: m.cookies}
		m.mu.RUnlock()
		return t, nil
	}
	m.mu.RUnlock()
	return m.Refresh(ctx)
}

// Refresh forces a token fetch.  Concurrent calls are coalesced into
// one upstream request.
func (m *TokenManager) Refresh(ctx context.Context) (Token, error) {
	v, err, _ := m.group.Do("csrf", func() (interface{}, error) {
		return m.fetch(ctx)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate drops the cached token unconditionally.  The next Get
// will refresh.  The gateway calls this when the upstream rejects a
// token with 403.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()
	m.log.Debug("csrf token invalidated")
}

// Info reports the cache state without touching the upstream.
func (m *TokenManager) Info() TokenInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := TokenInfo{
		HasToken:   m.token != "",
		HasCookies: m.cookies != "",
		IsValid:    m.validLocked(),
	}
	if !m.expiry.IsZero() {
		exp := m.expiry
		info.ExpiresAt = &exp
		if remaining := exp.Sub(m.now()); remaining > 0 {
			info.ExpiresIn = remaining.Milliseconds()
		}
	}
	return info
}

// validLocked implements the validity invariant: token, cookies and
// expiry all set, and now still ahead of expiry minus the buffer.
func (m *TokenManager) validLocked() bool {
	if m.token == "" || m.cookies == "" || m.expiry.IsZero() {
		return false
	}
	return m.now().Before(m.expiry.Add(-validityBuffer))
}

func (m *TokenManager) clearLocked() {
	m.token = ""
	m.cookies = ""
	m.expiry = time.Time{}
}

// fetch performs the credentialed token request.  The upstream returns
// the token in the x-csrf-token response header and session state in
// Set-Cookie headers.  On any failure the cache is cleared so the next
// caller retries a clean fetch.  Once started, a fetch runs to
// completion; the request is bounded by the shared client timeout
// rather than the first caller's context.
func (m *TokenManager) fetch(ctx context.Context) (Token, error) {
	m.log.Info("fetching new csrf token from upstream")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, m.cfg.TokenURL, nil)
	if err != nil {
		m.failed()
		return Token{}, fmt.Errorf("csrf token fetch failed: %w", err)
	}
	req.SetBasicAuth(m.cfg.Username, m.cfg.Password)
	req.Header.Set("X-CSRF-Token", "Fetch")
	req.Header.Set("sap-client", m.cfg.ClientID)

	resp, err := m.client.Do(req)
	if err != nil {
		m.failed()
		return Token{}, fmt.Errorf("csrf token fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.failed()
		return Token{}, &UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    "csrf token fetch failed",
		}
	}

	token := resp.Header.Get("X-Csrf-Token")
	if token == "" {
		m.failed()
		return Token{}, fmt.Errorf("csrf token fetch failed: upstream returned no x-csrf-token header")
	}
	cookies := joinSetCookies(resp.Header.Values("Set-Cookie"))

	now := m.now()
	m.mu.Lock()
	m.token = token
	m.cookies = cookies
	m.expiry = now.Add(m.cfg.CacheDuration)
	m.mu.Unlock()

	m.log.WithField("expires_in", m.cfg.CacheDuration.String()).Info("csrf token fetched")
	return Token{Value: token, Cookies: cookies}, nil
}

func (m *TokenManager) failed() {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()
}

// joinSetCookies reduces Set-Cookie headers to a single Cookie header
// value: only the name=value part of each cookie, "; " separated.
func joinSetCookies(setCookies []string) string {
	parts := make([]string, 0, len(setCookies))
	for _, sc := range setCookies {
		if i := strings.IndexByte(sc, ';'); i >= 0 {
			sc = sc[:i]
		}
		sc = strings.TrimSpace(sc)
		if sc != "" {
			parts = append(parts, sc)
		}
	}
	return strings.Join(parts, "; ")
}
