package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/session"
	"github.com/and161185/gigmarket/internal/testutil"
	"github.com/and161185/gigmarket/internal/token"
	"github.com/and161185/gigmarket/internal/tokenstore"
)

var ann = model.User{Email: "ann@example.com", Role: model.RoleFreelancer, DisplayName: "Ann"}

type seen struct {
	Method string
	Path   string
	Auth   string
	Header http.Header
	Body   string
}

// backend is a scripted marketplace API: /api/x requires the bearer in `accept`,
// /api/auth/refresh answers with refreshStatus/refreshBody.
type backend struct {
	mu            sync.Mutex
	accept        string
	refreshStatus int
	refreshBody   string
	calls         []seen
	routes        map[string]http.HandlerFunc
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	s := seen{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Header: r.Header.Clone(), Body: string(body)}

	b.mu.Lock()
	b.calls = append(b.calls, s)
	accept, rs, rb := b.accept, b.refreshStatus, b.refreshBody
	h := b.routes[r.URL.Path]
	b.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}
	switch r.URL.Path {
	case DefaultRefreshPath:
		w.WriteHeader(rs)
		_, _ = w.Write([]byte(rb))
	default:
		if accept == "" || r.Header.Get("Authorization") != "Bearer "+accept {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid token"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gigs":[{"id":"g1","title":"Logo design"}]}`))
	}
}

func (b *backend) paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.Path)
	}
	return out
}

func (b *backend) call(i int) seen {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[i]
}

type fixture struct {
	be    *backend
	srv   *httptest.Server
	store *tokenstore.Memory
	sess  *session.Manager
	cli   *Client
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	be := &backend{refreshStatus: http.StatusOK, routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	log := zaptest.NewLogger(t)
	st := tokenstore.NewMemory()
	sess := session.NewManager(st, token.NewValidator(nil), log)
	cli, err := New(srv.URL, sess, append([]Option{WithLogger(log), WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return &fixture{be: be, srv: srv, store: st, sess: sess, cli: cli}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	sess := session.NewManager(nil, nil, nil)

	_, err := New("ftp://example.com", sess)
	require.Error(t, err)
	_, err = New("://bad", sess)
	require.Error(t, err)
	_, err = New("http://example.com", nil)
	require.Error(t, err)
	c, err := New("https://api.example.com", sess)
	require.NoError(t, err)
	require.Same(t, sess, c.Session())
}

func TestRequest_AttachesBearerAndDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithUserAgent("gm/test"))
	access := testutil.Fresh(t)
	require.True(t, f.sess.SetSession(access, "", ann))
	f.be.accept = access

	var out struct {
		Gigs []struct{ ID, Title string } `json:"gigs"`
	}
	require.NoError(t, f.cli.RequestJSON(context.Background(), "/api/x", &out, Header("X-Trace", "t1")))
	require.Len(t, out.Gigs, 1)
	require.Equal(t, "g1", out.Gigs[0].ID)

	got := f.be.call(0)
	require.Equal(t, "Bearer "+access, got.Auth)
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.Equal(t, "t1", got.Header.Get("X-Trace"))
	require.Equal(t, "gm/test", got.Header.Get("User-Agent"))
	require.NotEmpty(t, got.Header.Get("X-Request-Id"))
}

func TestRequest_CallerHeadersWin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.True(t, f.sess.SetSession(testutil.Fresh(t), "", ann))
	f.be.routes["/upload"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}

	raw, err := f.cli.Request(context.Background(), "/upload",
		Method("post"),
		RawBody("text/plain", []byte("hello")),
		Header("Authorization", "Bearer caller-supplied"),
		Header("X-Request-Id", "fixed"),
	)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(raw))

	got := f.be.call(0)
	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "Bearer caller-supplied", got.Auth)
	require.Equal(t, "text/plain", got.Header.Get("Content-Type"))
	require.Equal(t, "fixed", got.Header.Get("X-Request-Id"))
	require.Equal(t, "hello", got.Body)
}

// Expired access token plus a valid refresh token: no stale bearer is sent,
// one refresh happens, the retry carries the new token.
func TestRequest_ExpiredTokenRefreshesAndRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	stale := testutil.Expired(t, 10*time.Second)
	refresh := testutil.Token(t, time.Now().Add(24*time.Hour), map[string]any{"typ": "refresh"})
	require.True(t, f.sess.SetSession(stale, refresh, ann))

	fresh := testutil.Token(t, time.Now().Add(time.Hour), map[string]any{"sub": "new"})
	f.be.accept = fresh
	f.be.refreshBody = `{"accessToken":"` + fresh + `"}`

	raw, err := f.cli.Request(context.Background(), "/api/x")
	require.NoError(t, err)
	require.Contains(t, string(raw), "Logo design")

	require.Equal(t, []string{"/api/x", DefaultRefreshPath, "/api/x"}, f.be.paths())
	require.Empty(t, f.be.call(0).Auth, "stale token must not be sent")

	var rr refreshRequest
	require.NoError(t, json.Unmarshal([]byte(f.be.call(1).Body), &rr))
	require.Equal(t, refresh, rr.RefreshToken)
	require.Empty(t, f.be.call(1).Auth)

	require.Equal(t, "Bearer "+fresh, f.be.call(2).Auth)

	got, ok := f.sess.AccessToken()
	require.True(t, ok)
	require.Equal(t, fresh, got)
	rt, ok := f.sess.RefreshToken()
	require.True(t, ok)
	require.Equal(t, refresh, rt)
	require.True(t, f.sess.HasSession())
}

// No tokens: one unauthenticated call, 401, no refresh possible.
func TestRequest_NoSessionAuthenticationRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.cli.Request(context.Background(), "/api/x")
	require.ErrorIs(t, err, errs.ErrAuthenticationRequired)
	require.Equal(t, []string{"/api/x"}, f.be.paths())
	require.Empty(t, f.be.call(0).Auth)
}

// Refresh endpoint fails with 500: authentication required, session cleared.
func TestRequest_RefreshServerErrorClearsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.True(t, f.sess.SetSession(testutil.Fresh(t), testutil.Fresh(t), ann))
	f.be.accept = "" // backend rejects everything
	f.be.refreshStatus = http.StatusInternalServerError
	f.be.refreshBody = `{"error":"db down"}`

	_, err := f.cli.Request(context.Background(), "/api/x")
	require.ErrorIs(t, err, errs.ErrAuthenticationRequired)
	require.ErrorIs(t, err, errs.ErrRefreshFailed)
	k, _ := errs.KindOf(err)
	require.Equal(t, errs.KindAuthenticationRequired, k)

	require.Equal(t, 0, f.store.Len())
	require.False(t, f.sess.HasSession())
	require.Equal(t, []string{"/api/x", DefaultRefreshPath}, f.be.paths())
}

func TestRequest_MalformedRefreshResponse(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"not json":        `<html>oops</html>`,
		"malformed token": `{"accessToken":"new.valid.token"}`,
		"missing token":   `{}`,
	} {
		f := newFixture(t)
		require.True(t, f.sess.SetSession(testutil.Fresh(t), testutil.Fresh(t), ann))
		f.be.refreshBody = body

		_, err := f.cli.Request(context.Background(), "/api/x")
		require.ErrorIs(t, err, errs.ErrAuthenticationRequired, name)
		require.ErrorIs(t, err, errs.ErrRefreshFailed, name)
		require.Equal(t, 0, f.store.Len(), name)
		require.Len(t, f.be.paths(), 2, name)
	}
}

func TestRequest_RetryIsAtMostOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.True(t, f.sess.SetSession(testutil.Fresh(t), testutil.Fresh(t), ann))
	// refresh succeeds but the backend keeps rejecting
	f.be.refreshBody = `{"accessToken":"` + testutil.Fresh(t) + `"}`

	_, err := f.cli.Request(context.Background(), "/api/x")
	require.ErrorIs(t, err, errs.ErrAuthenticationRequired)
	require.Equal(t, []string{"/api/x", DefaultRefreshPath, "/api/x"}, f.be.paths())
	require.False(t, f.sess.HasSession())
}

func TestRequest_RetryNon401Failure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.True(t, f.sess.SetSession(testutil.Fresh(t), testutil.Fresh(t), ann))
	fresh := testutil.Fresh(t)
	f.be.refreshBody = `{"accessToken":"` + fresh + `"}`
	var n int
	f.be.routes["/api/gigs/g1"] = func(w http.ResponseWriter, r *http.Request) {
		n++
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not your gig"}`))
	}

	_, err := f.cli.Request(context.Background(), "/api/gigs/g1", Method(http.MethodDelete))
	require.ErrorIs(t, err, errs.ErrRequestFailed)
	require.Equal(t, http.StatusForbidden, errs.StatusOf(err))
	require.Contains(t, err.Error(), "not your gig")
	// the refreshed session survives a non-auth failure
	require.True(t, f.sess.HasSession())
}

func TestRequest_ErrorMessageExtraction(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusBadRequest, `{"message":"title is required"}`, "title is required"},
		{http.StatusConflict, `{"error":"proposal already submitted"}`, "proposal already submitted"},
		{http.StatusNotFound, `{"message":"","error":"gig not found"}`, "gig not found"},
		{http.StatusInternalServerError, `<html>Bad Gateway</html>`, "HTTP error - status 500"},
		{http.StatusTeapot, ``, "HTTP error - status 418"},
		{http.StatusBadRequest, `{"message":42}`, "HTTP error - status 400"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		status, body := tc.status, tc.body
		f.be.routes["/api/gigs"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}
		_, err := f.cli.Request(context.Background(), "/api/gigs", Method(http.MethodPost), JSONBody(map[string]string{"title": ""}))
		require.ErrorIs(t, err, errs.ErrRequestFailed)
		require.Equal(t, tc.status, errs.StatusOf(err))
		var e *errs.Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, tc.want, e.Detail)
	}
}

func TestRequest_TransportError(t *testing.T) {
	t.Parallel()
	sess := session.NewManager(tokenstore.NewMemory(), nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, sess)
	require.NoError(t, err)
	_, err = c.Request(context.Background(), "/api/x")
	require.ErrorIs(t, err, errs.ErrTransport)
	require.NotErrorIs(t, err, errs.ErrAuthenticationRequired)
	require.NotErrorIs(t, err, errs.ErrRequestFailed)
}

func TestRequest_EmptyAndNonJSONBodies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.be.routes["/api/notifications/read"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	f.be.routes["/plain"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}

	raw, err := f.cli.Request(context.Background(), "/api/notifications/read", Method(http.MethodPut))
	require.NoError(t, err)
	require.Nil(t, raw)

	_, err = f.cli.Request(context.Background(), "/plain")
	require.ErrorIs(t, err, errs.ErrRequestFailed)
}

func TestRequest_BadJSONBodyOption(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.cli.Request(context.Background(), "/api/x", JSONBody(make(chan int)))
	require.Error(t, err)
	require.Empty(t, f.be.paths())
}

func TestRequest_ExpiredTokenOnLoginSurfaceKeepsSession(t *testing.T) {
	t.Parallel()
	loc := "/login"
	f := newFixture(t, WithLocator(func() string { return loc }))

	// planted straight into the store: PruneIfExpired is not involved here
	require.NoError(t, f.store.Write(map[tokenstore.Slot]string{
		tokenstore.SlotAccessToken: testutil.Expired(t, time.Minute),
		tokenstore.SlotEmail:       ann.Email,
		tokenstore.SlotRole:        string(ann.Role),
	}))
	h := f.cli.headers(newCall(nil))
	require.Empty(t, h.Get("Authorization"))
	require.NotZero(t, f.store.Len(), "login surface must not clear the session")

	loc = "/gigs"
	h = f.cli.headers(newCall(nil))
	require.Empty(t, h.Get("Authorization"))
	require.Zero(t, f.store.Len(), "expired token off the login surface clears the session")
}

func TestRefresh_Explicit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.cli.Refresh(context.Background())
	require.ErrorIs(t, err, errs.ErrAuthenticationRequired)

	refresh := testutil.Fresh(t)
	require.True(t, f.sess.SetSession(testutil.Expired(t, time.Minute), refresh, ann))
	fresh := testutil.Fresh(t)
	f.be.refreshBody = `{"accessToken":"` + fresh + `"}`
	require.NoError(t, f.cli.Refresh(context.Background()))
	got, _ := f.sess.AccessToken()
	require.Equal(t, fresh, got)

	f.be.refreshStatus = http.StatusUnauthorized
	f.be.refreshBody = `{"message":"Refresh token has expired"}`
	err = f.cli.Refresh(context.Background())
	require.ErrorIs(t, err, errs.ErrRefreshFailed)
	require.Contains(t, err.Error(), "Refresh token has expired")
	// explicit refresh failure leaves the session for the caller to decide
	require.True(t, f.sess.HasSession())
}

func TestRequest_ConcurrentRefreshesAreIndependent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.True(t, f.sess.SetSession(testutil.Expired(t, time.Second), testutil.Fresh(t), ann))
	fresh := testutil.Fresh(t)
	f.be.accept = fresh
	f.be.refreshBody = `{"accessToken":"` + fresh + `"}`

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cli.Request(context.Background(), "/api/x")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		// a late request may see the session cleared by a sibling's 401;
		// it must fail cleanly rather than corrupt state
		if err != nil {
			require.ErrorIs(t, err, errs.ErrAuthenticationRequired)
		}
	}
	if f.sess.HasSession() {
		got, _ := f.sess.AccessToken()
		require.Equal(t, fresh, got)
	}
}

func TestIsLoginSurface(t *testing.T) {
	t.Parallel()
	for loc, want := range map[string]bool{
		"/login":            true,
		"/login/mfa":        true,
		"/login?next=/gigs": true,
		"/register":         true,
		"/auth/callback":    true,
		"/loginx":           false,
		"/gigs":             false,
		"":                  false,
		"/dashboard#/login": false,
		"/signup":           true,
	} {
		require.Equal(t, want, IsLoginSurface(loc, DefaultLoginSurfaces), loc)
	}
	require.False(t, IsLoginSurface("/login", []string{"", "/"}))
}

func TestRequestAnonymous_NoBearerNoRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	access, refresh := testutil.Fresh(t), testutil.Fresh(t)
	require.True(t, f.sess.SetSession(access, refresh, ann))
	f.be.routes["/api/auth/login"] = func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"a","refreshToken":"r"}`))
	}

	var out model.Tokens
	err := f.cli.RequestAnonymous(context.Background(), "/api/auth/login", &out,
		Method(http.MethodPost), JSONBody(map[string]string{"password": "wrong"}))
	require.ErrorIs(t, err, errs.ErrRequestFailed)
	require.NotErrorIs(t, err, errs.ErrAuthenticationRequired)
	require.Equal(t, http.StatusUnauthorized, errs.StatusOf(err))
	require.Contains(t, err.Error(), "invalid credentials")

	require.Equal(t, []string{"/api/auth/login"}, f.be.paths(), "no refresh attempted")
	require.Empty(t, f.be.call(0).Auth)
	require.True(t, f.sess.HasSession(), "session untouched")

	require.NoError(t, f.cli.RequestAnonymous(context.Background(), "/api/auth/login", &out,
		Method(http.MethodPost), JSONBody(map[string]string{"password": "right"})))
	require.Equal(t, "a", out.AccessToken)
	require.Equal(t, "r", out.RefreshToken)
}
