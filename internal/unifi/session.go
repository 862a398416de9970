// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
session.go - Authenticated UniFi OS Session

Login flow: POST credentials to /api/auth/login over TLS (self-signed
certificates accepted unless verify_ssl is set), capture the session
cookies and the CSRF token from the response headers. The cookie jar is
exported as a Cookie header for websocket upgrade requests.
*/

package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/logging"
)

// csrfHeaders are the response headers the console may use for the
// CSRF token, checked in order; first match wins.
var csrfHeaders = [...]string{"x-csrf-token", "x-updated-csrf-token"}

// Session is an authenticated HTTP/cookie context with the console.
type Session struct {
	cfg       config.UniFiConfig
	client    *http.Client
	jar       *cookiejar.Jar
	baseURL   *url.URL
	csrfToken string
}

// loginRequest is the /api/auth/login body.
type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Token      string `json:"token"`
	RememberMe bool   `json:"rememberMe"`
}

// bootstrapResponse is the subset of /proxy/protect/api/bootstrap we need.
type bootstrapResponse struct {
	LastUpdateID string `json:"lastUpdateId"`
}

// Login authenticates against the console and returns a Session.
// Bad credentials are fatal to the supervisor run (ErrAuthFailed).
func Login(ctx context.Context, cfg config.UniFiConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	baseURL, err := url.Parse(cfg.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("invalid console host %q: %w", cfg.Host, err)
	}

	client := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // consoles ship self-signed certs
			},
		},
	}

	s := &Session{
		cfg:     cfg,
		client:  client,
		jar:     jar,
		baseURL: baseURL,
	}

	body, err := json.Marshal(loginRequest{
		Username:   cfg.Username,
		Password:   cfg.Password,
		Token:      "",
		RememberMe: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL()+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: login returned status %d: %s", ErrAuthFailed, resp.StatusCode, snippet)
	}

	// Login cookies without a Path default to /api/auth in the jar;
	// store them at the root so they reach the websocket endpoints.
	cookies := resp.Cookies()
	for _, c := range cookies {
		c.Path = "/"
	}
	jar.SetCookies(baseURL, cookies)

	for _, h := range csrfHeaders {
		if v := resp.Header.Get(h); v != "" {
			s.csrfToken = v
			break
		}
	}

	logging.Info().Str("host", cfg.Host).Bool("csrf", s.csrfToken != "").Msg("Authenticated with UniFi console")
	return s, nil
}

// Host returns the console host (host[:port]).
func (s *Session) Host() string {
	return s.baseURL.Host
}

// CSRFToken returns the captured CSRF token ("" when none was issued).
func (s *Session) CSRFToken() string {
	return s.csrfToken
}

// CookieHeader serializes the session cookies for a websocket upgrade
// request.
func (s *Session) CookieHeader() string {
	cookies := s.jar.Cookies(s.baseURL)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// TLSClientConfig returns the TLS settings shared by HTTP and
// websocket connections.
func (s *Session) TLSClientConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: !s.cfg.VerifySSL, //nolint:gosec // consoles ship self-signed certs
	}
}

// Get performs an authenticated GET with the CSRF header attached.
// The caller owns the response body.
func (s *Session) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	if s.csrfToken != "" {
		req.Header.Set("x-csrf-token", s.csrfToken)
	}
	return s.client.Do(req)
}

// ProtectBootstrap fetches the Protect bootstrap and returns the
// lastUpdateId resume cursor. Failure is fatal to the supervisor run.
func (s *Session) ProtectBootstrap(ctx context.Context) (string, error) {
	resp, err := s.Get(ctx, "/proxy/protect/api/bootstrap")
	if err != nil {
		return "", fmt.Errorf("%w: bootstrap: %v", ErrAuthFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: bootstrap returned status %d: %s", ErrAuthFailed, resp.StatusCode, snippet)
	}

	var bootstrap bootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&bootstrap); err != nil {
		return "", fmt.Errorf("%w: bootstrap parse: %v", ErrAuthFailed, err)
	}

	logging.Info().Str("last_update_id", bootstrap.LastUpdateID).Msg("Got Protect bootstrap")
	return bootstrap.LastUpdateID, nil
}

// NetworkEvents fetches up to limit historical Network events, newest
// first.
func (s *Session) NetworkEvents(ctx context.Context, limit int) ([]json.RawMessage, error) {
	path := "/proxy/network/api/s/default/stat/event"
	if limit > 0 {
		path += "?_limit=" + strconv.Itoa(limit)
	}

	resp, err := s.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("network events fetch failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: network events returned status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var parsed struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: network events parse: %v", ErrInvalidResponse, err)
	}
	return parsed.Data, nil
}

// SystemEvents fetches up to limit historical System events. When the
// primary logs endpoint fails, the Network alarms endpoint serves as a
// fallback; fromFallback reports which one answered so the caller can
// apply the configured source-tag policy.
func (s *Session) SystemEvents(ctx context.Context, limit int) (rows []json.RawMessage, fromFallback bool, err error) {
	path := "/api/system/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := s.Get(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("system events fetch failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		defer drainAndClose(resp.Body)
		rows, err = parseSystemEventsBody(resp.Body)
		return rows, false, err
	}
	drainAndClose(resp.Body)

	// Primary endpoint unavailable on this console version; the alarms
	// endpoint carries the same class of events under a second schema.
	resp, err = s.Get(ctx, "/proxy/network/api/s/default/stat/alarm")
	if err != nil {
		return nil, false, fmt.Errorf("system events fallback fetch failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("%w: system events fallback returned status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var parsed struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("%w: system events fallback parse: %v", ErrInvalidResponse, err)
	}
	return parsed.Data, true, nil
}

// parseSystemEventsBody accepts the three shapes the logs endpoint is
// known to return: a bare array, {data: […]}, or {logs: […]}.
func parseSystemEventsBody(r io.Reader) ([]json.RawMessage, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("system events read failed: %w", err)
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(body, &asArray); err == nil {
		return asArray, nil
	}

	var asObject struct {
		Data []json.RawMessage `json:"data"`
		Logs []json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("%w: system events parse: %v", ErrInvalidResponse, err)
	}
	if asObject.Data != nil {
		return asObject.Data, nil
	}
	return asObject.Logs, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	if err := body.Close(); err != nil {
		logging.Debug().Err(err).Msg("Failed to close response body")
	}
}
