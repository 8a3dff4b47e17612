package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends for the reference server.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Server is the reference backend configuration.
type Server struct {
	Backend    string // postgres or memory
	Addr       string
	HealthAddr string
	DSN        string
	JWTKey     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	LimitWindow   time.Duration
	LimitMaxFails int
	LimitBlockFor time.Duration

	RateRPS   float64 // per-address request rate on /api/auth
	RateBurst int

	TLSCert string // empty serves plaintext
	TLSKey  string

	Dev bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func getenvInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

// ServerFromEnv returns settings from GM_* environment variables over defaults.
func ServerFromEnv() *Server {
	return &Server{
		Backend:       getenv("GM_BACKEND", BackendPostgres),
		Addr:          getenv("GM_ADDR", ":8080"),
		HealthAddr:    getenv("GM_HEALTH_ADDR", ":8081"),
		DSN:           getenv("GM_DSN", "postgres://gm:gm@localhost:5432/gigmarket?sslmode=disable"),
		JWTKey:        getenv("GM_JWT_KEY", ""),
		AccessTTL:     getenvDuration("GM_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getenvDuration("GM_REFRESH_TTL", 30*24*time.Hour),
		LimitWindow:   getenvDuration("GM_LIMIT_WINDOW", 15*time.Minute),
		LimitMaxFails: getenvInt("GM_LIMIT_MAX_FAILS", 5),
		LimitBlockFor: getenvDuration("GM_LIMIT_BLOCK_FOR", 15*time.Minute),
		RateRPS:       getenvFloat("GM_RATE_RPS", 5),
		RateBurst:     getenvInt("GM_RATE_BURST", 20),
		TLSCert:       getenv("GM_TLS_CERT", ""),
		TLSKey:        getenv("GM_TLS_KEY", ""),
	}
}

// RegisterFlags binds fs to s; flag defaults are the current values of s.
func (s *Server) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.Backend, "backend", s.Backend, "storage backend: postgres or memory (dev only)")
	fs.StringVar(&s.Addr, "addr", s.Addr, "HTTP listen address")
	fs.StringVar(&s.HealthAddr, "health-addr", s.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&s.DSN, "dsn", s.DSN, "PostgreSQL DSN")
	fs.StringVar(&s.JWTKey, "jwt-key", s.JWTKey, "HS256 signing key (required)")
	fs.DurationVar(&s.AccessTTL, "access-ttl", s.AccessTTL, "access token TTL")
	fs.DurationVar(&s.RefreshTTL, "refresh-ttl", s.RefreshTTL, "refresh token TTL")
	fs.DurationVar(&s.LimitWindow, "limit-window", s.LimitWindow, "login failure counting window")
	fs.IntVar(&s.LimitMaxFails, "limit-max-fails", s.LimitMaxFails, "failures before lockout")
	fs.DurationVar(&s.LimitBlockFor, "limit-block-for", s.LimitBlockFor, "lockout duration")
	fs.Float64Var(&s.RateRPS, "rate-rps", s.RateRPS, "per-address requests per second on /api/auth (0 disables)")
	fs.IntVar(&s.RateBurst, "rate-burst", s.RateBurst, "per-address burst on /api/auth")
	fs.StringVar(&s.TLSCert, "tls-cert", s.TLSCert, "TLS certificate (PEM); empty serves plaintext")
	fs.StringVar(&s.TLSKey, "tls-key", s.TLSKey, "TLS private key (PEM)")
	fs.BoolVar(&s.Dev, "dev", s.Dev, "enable gRPC reflection (dev only)")
}

// Validate checks required settings.
func (s *Server) Validate() error {
	if s.JWTKey == "" {
		return errors.New("missing jwt signing key (--jwt-key or GM_JWT_KEY)")
	}
	if len(s.JWTKey) < 16 {
		return errors.New("jwt signing key must be at least 16 bytes")
	}
	switch s.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.Backend == BackendPostgres && s.DSN == "" {
		return errors.New("missing DSN")
	}
	if s.AccessTTL <= 0 || s.RefreshTTL <= s.AccessTTL {
		return errors.New("ttls must satisfy 0 < access-ttl < refresh-ttl")
	}
	if s.LimitMaxFails <= 0 {
		return errors.New("limit-max-fails must be positive")
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	return nil
}
