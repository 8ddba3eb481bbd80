package sap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// UpstreamError is returned when the ERP answers with a non-2xx status
// or the token endpoint fails.  Status and body are preserved so the
// boundary layer can surface them for diagnostics.
type UpstreamError struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: upstream responded %s", e.Message, e.Status)
	}
	return fmt.Sprintf("upstream responded %s", e.Status)
}

// ClientConfig carries the OData service settings.
type ClientConfig struct {
	BaseURL     string // e.g. https://erp.example.com:44300
	ServicePath string // e.g. /sap/opu/odata/sap/ZMO_APPROVAL_SRV
	Username    string
	Password    string
	ClientID    string // sap-client header value
}

// Client wraps all outbound calls to the ERP's OData service.  Reads
// carry basic auth and the client header only; mutating verbs
// additionally obtain the CSRF token pair from the token manager.  A
// mutating call rejected with 403 invalidates the cached token and is
// retried exactly once with a fresh one.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	tokens *TokenManager
	log    *logrus.Entry
}

// NewClient builds the gateway.  tokens may share its HTTP client with
// the gateway; both only rely on the client's timeout and TLS settings.
func NewClient(cfg ClientConfig, httpClient *http.Client, tokens *TokenManager, log *logrus.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: tokens,
		log:    log.WithField("component", "sap"),
	}
}

// NewHTTPClient returns the shared upstream HTTP client.  Certificate
// verification is configurable because test and on-premise ERP systems
// commonly run with self-signed certificates.
func NewHTTPClient(timeout time.Duration, verifyTLS bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifyTLS},
		},
	}
}

// TokenInfo exposes the token manager's diagnostic snapshot.
func (c *Client) TokenInfo() TokenInfo {
	return c.tokens.Info()
}

// RefreshToken forces a CSRF token refresh, for the diagnostics
// endpoint.
func (c *Client) RefreshToken(ctx context.Context) (Token, error) {
	return c.tokens.Refresh(ctx)
}

// Get performs a read-only OData request.  No CSRF token is attached.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, false)
}

// Post performs a mutating OData request with the CSRF token attached.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body, false)
}

// Put performs a mutating OData request with the CSRF token attached.
func (c *Client) Put(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, path, body, false)
}

// Patch performs a mutating OData request with the CSRF token attached.
func (c *Client) Patch(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, path, body, false)
}

// Delete performs a mutating OData request with the CSRF token attached.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil, false)
}

// do executes one upstream request.  retried is threaded through as a
// parameter instead of being flipped on a shared request object, so
// concurrent calls can never alias each other's retry state.
func (c *Client) do(ctx context.Context, method, path string, body []byte, retried bool) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.cfg.BaseURL + c.cfg.ServicePath + path
	mutating := method != http.MethodGet

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("sap-client", c.cfg.ClientID)
	req.Header.Set("Accept", "application/json")

	if mutating {
		tok, err := c.tokens.Get(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-CSRF-Token", tok.Value)
		req.Header.Set("Cookie", tok.Cookies)
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden && mutating && !retried {
		// The cached token was most likely rejected.  Refresh once and
		// replay the identical request; a second 403 propagates.
		c.log.WithFields(logrus.Fields{"method": method, "path": path}).
			Warn("upstream returned 403, refreshing csrf token and retrying")
		c.tokens.Invalidate()
		return c.do(ctx, method, path, body, true)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Error("upstream request failed")
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}
