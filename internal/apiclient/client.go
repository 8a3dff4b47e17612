// Package apiclient is the one call-site features use to reach the marketplace backend.
//
// It attaches the bearer token, and on a 401 performs at most one refresh-and-retry
// cycle before giving up with an authentication-required error. It never navigates:
// deciding where to send the user is the caller's job (see package shell).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/session"
)

const (
	headerRequestID = "X-Request-Id"
	maxBodyBytes    = 8 << 20
)

// Client talks to the backend on behalf of the current session.
type Client struct {
	base          *url.URL
	http          *http.Client
	sess          *session.Manager
	log           *zap.Logger
	refreshPath   string
	locate        func() string
	loginSurfaces []string
	userAgent     string
}

// New returns a Client for baseURL backed by the session manager.
func New(baseURL string, sess *session.Manager, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url: unsupported scheme %q", u.Scheme)
	}
	if sess == nil {
		return nil, errors.New("apiclient: nil session manager")
	}
	c := &Client{
		base:          u,
		http:          &http.Client{Timeout: 30 * time.Second},
		sess:          sess,
		log:           zap.NewNop(),
		refreshPath:   DefaultRefreshPath,
		loginSurfaces: DefaultLoginSurfaces,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Session returns the manager the client reads credentials from.
func (c *Client) Session() *session.Manager { return c.sess }

// RequestJSON is Request followed by decoding the body into out (nil out discards it).
func (c *Client) RequestJSON(ctx context.Context, path string, out any, opts ...RequestOption) error {
	raw, err := c.Request(ctx, path, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.New(errs.KindRequestFailed, 0, "decode response", err)
	}
	return nil
}

// Request performs path against the backend and returns the JSON body of a 2xx
// response (nil for an empty body).
//
// Failures: *errs.Error of KindAuthenticationRequired when there is no usable
// session, KindRequestFailed for other non-2xx answers, KindTransport when no
// response arrived.
func (c *Client) Request(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	sp := newCall(opts)
	if sp.err != nil {
		return nil, fmt.Errorf("encode request body: %w", sp.err)
	}

	// taken before pruning so the refresh token survives it
	snap := c.sess.Snapshot()
	c.sess.PruneIfExpired()

	hdr := c.headers(sp)
	status, body, err := c.dispatch(ctx, path, sp.method, hdr, sp.body)
	if err != nil {
		return nil, err
	}
	switch {
	case isSuccess(status):
		return asJSON(status, body)
	case status == http.StatusUnauthorized:
		return c.refreshAndRetry(ctx, path, sp, hdr, snap)
	default:
		return nil, requestFailed(status, body)
	}
}

// Refresh exchanges the stored refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) error {
	refresh, ok := c.sess.RefreshToken()
	if !ok {
		return errs.New(errs.KindAuthenticationRequired, 0, "no refresh token", nil)
	}
	access, err := c.exchange(ctx, refresh)
	if err != nil {
		return err
	}
	if !c.sess.UpdateAccessToken(access) {
		return errs.New(errs.KindRefreshFailed, 0, "could not persist refreshed token", nil)
	}
	return nil
}

func (c *Client) refreshAndRetry(ctx context.Context, path string, sp *call, hdr http.Header, snap model.Credentials) (json.RawMessage, error) {
	c.sess.ClearSession()

	refresh := snap.RefreshToken
	if refresh == "" {
		return nil, errs.New(errs.KindAuthenticationRequired, http.StatusUnauthorized, "no refresh token", nil)
	}
	access, err := c.exchange(ctx, refresh)
	if err != nil {
		if errors.Is(err, errs.ErrTransport) {
			return nil, err
		}
		c.log.Warn("refresh rejected", zap.Error(err))
		return nil, errs.New(errs.KindAuthenticationRequired, http.StatusUnauthorized, "", err)
	}

	// the 401 cleared the store; put the rest of the bundle back around the new token
	if !c.sess.Restore(snap, access) && !c.sess.UpdateAccessToken(access) {
		return nil, errs.New(errs.KindAuthenticationRequired, http.StatusUnauthorized, "could not persist refreshed token", nil)
	}

	retry := hdr.Clone()
	retry.Set("Authorization", "Bearer "+access)
	status, body, err := c.dispatch(ctx, path, sp.method, retry, sp.body)
	if err != nil {
		return nil, err
	}
	switch {
	case isSuccess(status):
		return asJSON(status, body)
	case status == http.StatusUnauthorized:
		// no second refresh
		c.sess.ClearSession()
		return nil, errs.New(errs.KindAuthenticationRequired, status, "rejected after refresh", requestFailed(status, body))
	default:
		return nil, requestFailed(status, body)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// exchange posts the refresh token and returns a format-valid access token.
func (c *Client) exchange(ctx context.Context, refresh string) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refresh})
	if err != nil {
		return "", err
	}
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set(headerRequestID, newRequestID())
	if c.userAgent != "" {
		hdr.Set("User-Agent", c.userAgent)
	}

	c.log.Info("refreshing access token")
	status, respBody, err := c.dispatch(ctx, c.refreshPath, http.MethodPost, hdr, body)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", errs.New(errs.KindRefreshFailed, status, errorMessage(status, respBody), nil)
	}
	var out refreshResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", errs.New(errs.KindRefreshFailed, status, "malformed refresh response", err)
	}
	if !c.sess.Validator().IsValidFormat(out.AccessToken) {
		return "", errs.New(errs.KindRefreshFailed, status, "refresh returned a malformed access token", nil)
	}
	return out.AccessToken, nil
}

// RequestAnonymous performs path outside the session: no bearer is attached and a
// 401 is reported like any other failure instead of starting a refresh. Credential
// endpoints (login, register, logout) go through here.
func (c *Client) RequestAnonymous(ctx context.Context, path string, out any, opts ...RequestOption) error {
	sp := newCall(opts)
	if sp.err != nil {
		return fmt.Errorf("encode request body: %w", sp.err)
	}
	status, body, err := c.dispatch(ctx, path, sp.method, c.baseHeaders(sp), sp.body)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return requestFailed(status, body)
	}
	raw, err := asJSON(status, body)
	if err != nil || out == nil || len(raw) == 0 {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.New(errs.KindRequestFailed, status, "decode response", err)
	}
	return nil
}

func (c *Client) baseHeaders(sp *call) http.Header {
	h := sp.header.Clone()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	if h.Get(headerRequestID) == "" {
		h.Set(headerRequestID, newRequestID())
	}
	if c.userAgent != "" && h.Get("User-Agent") == "" {
		h.Set("User-Agent", c.userAgent)
	}
	return h
}

// headers merges caller headers with defaults and the bearer token.
func (c *Client) headers(sp *call) http.Header {
	h := c.baseHeaders(sp)
	if h.Get("Authorization") != "" {
		return h
	}

	tok, ok := c.sess.AccessToken()
	if !ok {
		return h
	}
	if c.sess.Validator().IsExpired(tok) {
		if !c.onLoginSurface() {
			c.sess.ClearSession()
		}
		return h
	}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func (c *Client) onLoginSurface() bool {
	if c.locate == nil {
		return false
	}
	return IsLoginSurface(c.locate(), c.loginSurfaces)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(ref).String(), nil
}

// dispatch sends one request and reads the whole (bounded) body.
func (c *Client) dispatch(ctx context.Context, path, method string, hdr http.Header, body []byte) (int, []byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return 0, nil, errs.New(errs.KindTransport, 0, "bad request path", err)
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, errs.New(errs.KindTransport, 0, "build request", err)
	}
	req.Header = hdr.Clone()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, errs.New(errs.KindTransport, 0, "", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, errs.New(errs.KindTransport, resp.StatusCode, "read body", err)
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
		zap.String("request_id", hdr.Get(headerRequestID)),
		zap.Bool("auth", hdr.Get("Authorization") != ""),
	)
	return resp.StatusCode, b, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

func asJSON(status int, body []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errs.New(errs.KindRequestFailed, status, "response is not JSON", nil)
	}
	return json.RawMessage(body), nil
}

func requestFailed(status int, body []byte) error {
	return errs.New(errs.KindRequestFailed, status, errorMessage(status, body), nil)
}

// errorMessage extracts "message", then "error", from a JSON error body.
// Unparsable bodies count as empty.
func errorMessage(status int, body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = map[string]any{}
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("HTTP error - status %d", status)
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}
