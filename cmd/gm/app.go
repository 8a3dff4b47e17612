package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/apiclient"
	"github.com/and161185/gigmarket/internal/config"
	"github.com/and161185/gigmarket/internal/crypto/sealbox"
	"github.com/and161185/gigmarket/internal/session"
	"github.com/and161185/gigmarket/internal/shell"
	"github.com/and161185/gigmarket/internal/token"
	"github.com/and161185/gigmarket/internal/tokenstore"
)

// storeKeyInfo binds the credential-file key to its purpose; the master key on disk is never used directly.
const storeKeyInfo = "gigmarket/tokenstore/v1"

const loginHint = "session expired: run `gm login -email <addr> -p -` to sign in again"

// app holds the per-invocation session stack.
type app struct {
	cfg  *config.Client
	sess *session.Manager
	api  *apiclient.Client
	sh   *shell.Shell
	term *shell.Terminal
	out  io.Writer
	errw io.Writer
	log  *zap.Logger
}

func newApp(cfg *config.Client, g globals, cmd string, stdout, stderr io.Writer, log *zap.Logger) (*app, error) {
	store, err := openStore(cfg, log.Named("store"))
	if err != nil {
		return nil, err
	}
	sess := session.NewManager(store, token.NewValidator(nil), log.Named("session"))

	tlsCfg, err := loadTLS(g.caPath, g.insecure)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	if tlsCfg != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsCfg
		hc.Transport = tr
	}

	// the running command is the "screen" the user is on
	term := shell.NewTerminal("/"+cmd, stderr, loginHint)
	api, err := apiclient.New(cfg.BaseURL, sess,
		apiclient.WithHTTPClient(hc),
		apiclient.WithLogger(log.Named("api")),
		apiclient.WithRefreshPath(cfg.RefreshPath),
		apiclient.WithLocator(term.Location),
		apiclient.WithUserAgent("gm/"+version),
	)
	if err != nil {
		return nil, err
	}
	sh := shell.New(api, term, shell.WithLoginPath(cfg.LoginPath), shell.WithLogger(log.Named("shell")))

	return &app{cfg: cfg, sess: sess, api: api, sh: sh, term: term, out: stdout, errw: stderr, log: log}, nil
}

// openStore picks the credential store backend.
func openStore(cfg *config.Client, log *zap.Logger) (tokenstore.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return tokenstore.NewMemory(), nil
	case config.StoreNone:
		return tokenstore.Nop{}, nil
	}
	opts := []tokenstore.FileOption{tokenstore.WithLogger(log)}
	if cfg.Seal {
		master, err := sealbox.LoadOrCreateKey(config.KeyPath())
		if err != nil {
			return nil, fmt.Errorf("store key: %w", err)
		}
		key, err := sealbox.DeriveKey(master, []byte(storeKeyInfo))
		if err != nil {
			return nil, fmt.Errorf("store key: %w", err)
		}
		opts = append(opts, tokenstore.WithSealKey(key))
	}
	return tokenstore.NewFile(config.TokenPath(), opts...), nil
}

// loadTLS returns nil when the system defaults apply.
func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev only, opt-in flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
