// Package shell is the UI-level policy around the API client: it owns navigation
// to the login surface when a call reports that authentication is required.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/apiclient"
	"github.com/and161185/gigmarket/internal/errs"
)

// Navigator is whatever hosts the user: a router, a terminal, a test double.
type Navigator interface {
	Location() string
	Navigate(to string)
}

// Requester is the slice of apiclient.Client the shell needs.
type Requester interface {
	Request(ctx context.Context, path string, opts ...apiclient.RequestOption) (json.RawMessage, error)
}

// Shell routes requests through a Requester and redirects on authentication loss.
type Shell struct {
	api       Requester
	nav       Navigator
	loginPath string
	surfaces  []string
	log       *zap.Logger
}

// Option configures a Shell.
type Option func(*Shell)

// WithLoginPath sets where the shell sends the user (default apiclient.DefaultLoginPath).
func WithLoginPath(p string) Option {
	return func(s *Shell) {
		if p != "" {
			s.loginPath = p
		}
	}
}

// WithLoginSurfaces overrides the locations counted as login surfaces.
func WithLoginSurfaces(prefixes ...string) Option {
	return func(s *Shell) { s.surfaces = append([]string(nil), prefixes...) }
}

// WithLogger sets the shell logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Shell) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds a Shell.
func New(api Requester, nav Navigator, opts ...Option) *Shell {
	s := &Shell{
		api:       api,
		nav:       nav,
		loginPath: apiclient.DefaultLoginPath,
		surfaces:  apiclient.DefaultLoginSurfaces,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Request forwards to the API and applies the redirect policy to the result.
func (s *Shell) Request(ctx context.Context, path string, opts ...apiclient.RequestOption) (json.RawMessage, error) {
	raw, err := s.api.Request(ctx, path, opts...)
	if err != nil {
		s.HandleError(err)
		return nil, err
	}
	return raw, nil
}

// RequestJSON is Request plus decoding into out.
func (s *Shell) RequestJSON(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error {
	raw, err := s.Request(ctx, path, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// HandleError redirects to the login path when err means the session is gone and
// the user is not already on a login surface. It reports whether it navigated.
func (s *Shell) HandleError(err error) bool {
	if !errors.Is(err, errs.ErrAuthenticationRequired) || s.nav == nil {
		return false
	}
	if apiclient.IsLoginSurface(s.nav.Location(), s.surfaces) {
		return false
	}
	s.log.Info("session lost, redirecting to login", zap.String("from", s.nav.Location()))
	s.nav.Navigate(s.loginPath)
	return true
}

// Terminal is a Navigator for command-line use. Its location is the running
// command; navigating prints a login hint once.
type Terminal struct {
	mu       sync.Mutex
	location string
	out      io.Writer
	hint     string
	visited  []string
}

// NewTerminal returns a Terminal at location writing hints to out.
func NewTerminal(location string, out io.Writer, hint string) *Terminal {
	return &Terminal{location: location, out: out, hint: hint}
}

func (t *Terminal) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

func (t *Terminal) Navigate(to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == to {
		return
	}
	t.location = to
	t.visited = append(t.visited, to)
	if t.out != nil && t.hint != "" {
		fmt.Fprintln(t.out, t.hint)
	}
}

// Visited lists every navigation target in order.
func (t *Terminal) Visited() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.visited...)
}
