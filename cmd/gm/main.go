// Command gm is a command-line client for the gigmarket marketplace API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/config"
	"github.com/and161185/gigmarket/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitAuth  = 3
)

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, `gm CLI
Usage:
  gm [-config file] [-base-url URL] [-cacert file | -insecure] [-timeout d] [-store kind] [-v] <cmd> [args]

Commands:
  version
  register   -email <addr> -p <password|-> -role <client|freelancer> [-name <display name>]
  login      -email <addr> -p <password|->          (saves the session)
  logout                                          (revokes the refresh token, clears the session)
  whoami                                          (GET /api/users/me)
  status                                          (local session state, no network)
  refresh                                         (exchange the refresh token now)
  get        [-X method] [-d json] <path>          (authenticated request, prints JSON)
  config     [-init]                               (print effective settings; -init writes them to the config file)
`)
}

type globals struct {
	configPath string
	baseURL    string
	caPath     string
	insecure   bool
	verbose    bool
	timeout    time.Duration
	store      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses global flags, wires the session stack and dispatches one subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var g globals
	fs := flag.NewFlagSet("gm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", config.ClientPath(), "config file (YAML)")
	fs.StringVar(&g.baseURL, "base-url", "", "backend URL (overrides config)")
	fs.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	fs.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	fs.BoolVar(&g.verbose, "v", false, "debug logging to stderr")
	fs.DurationVar(&g.timeout, "timeout", 0, "per-command timeout (overrides config)")
	fs.StringVar(&g.store, "store", "", "credential store: file, memory or none (overrides config)")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		usage(stderr)
		return exitUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "gm %s (%s)\n", version, buildDate)
		return exitOK
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitError
	}

	log := zap.NewNop()
	if g.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			log = l
		}
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, g, cmd, stdout, stderr, log)
	if err != nil {
		return fail(stderr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cmd {
	case "register":
		err = a.register(ctx, rest, stdin)
	case "login":
		err = a.login(ctx, rest, stdin)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami(ctx)
	case "status":
		err = a.status()
	case "refresh":
		err = a.refresh(ctx)
	case "get":
		err = a.get(ctx, rest)
	case "config":
		err = a.config(rest, g.configPath)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return exitUsage
	}
	if err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// loadConfig reads the YAML file and applies the global flag overrides.
func loadConfig(g globals) (*config.Client, error) {
	cfg, err := config.LoadClient(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}
	if g.store != "" {
		cfg.Store = g.store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fail prints err and picks the exit code.
func fail(w io.Writer, err error) int {
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(w, err)
		return exitUsage
	case errors.Is(err, errs.ErrAuthenticationRequired):
		fmt.Fprintln(w, "error:", err)
		return exitAuth
	default:
		fmt.Fprintln(w, "error:", err)
		return exitError
	}
}
