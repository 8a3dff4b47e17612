package apiclient

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Default endpoints and surfaces.
const (
	DefaultRefreshPath = "/api/auth/refresh"
	DefaultLoginPath   = "/login"
)

// DefaultLoginSurfaces are location prefixes treated as "already on a login screen".
var DefaultLoginSurfaces = []string{"/login", "/register", "/signin", "/signup", "/auth"}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client (default: 30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRefreshPath overrides the refresh endpoint path.
func WithRefreshPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.refreshPath = p
		}
	}
}

// WithLocator supplies the caller's current navigational location.
func WithLocator(loc func() string) Option {
	return func(c *Client) { c.locate = loc }
}

// WithLoginSurfaces replaces DefaultLoginSurfaces.
func WithLoginSurfaces(prefixes ...string) Option {
	return func(c *Client) { c.loginSurfaces = append([]string(nil), prefixes...) }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// IsLoginSurface reports whether location starts with any of the prefixes.
// The match is on path segments: "/login" matches "/login" and "/login/mfa", not "/loginx".
func IsLoginSurface(location string, prefixes []string) bool {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if location == p || strings.HasPrefix(location, p+"/") {
			return true
		}
	}
	return false
}

// RequestOption shapes a single request.
type RequestOption func(*call)

type call struct {
	method string
	header http.Header
	body   []byte
	err    error
}

func newCall(opts []RequestOption) *call {
	s := &call{method: http.MethodGet, header: http.Header{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Method sets the HTTP method (default GET).
func Method(m string) RequestOption {
	return func(s *call) { s.method = strings.ToUpper(m) }
}

// Header adds a caller header. Caller headers are never dropped.
func Header(key, value string) RequestOption {
	return func(s *call) { s.header.Add(key, value) }
}

// JSONBody marshals v as the request body.
func JSONBody(v any) RequestOption {
	return func(s *call) {
		b, err := json.Marshal(v)
		if err != nil {
			s.err = err
			return
		}
		s.body = b
	}
}

// RawBody sends b with the given content type.
func RawBody(contentType string, b []byte) RequestOption {
	return func(s *call) {
		s.body = b
		if contentType != "" {
			s.header.Set("Content-Type", contentType)
		}
	}
}
