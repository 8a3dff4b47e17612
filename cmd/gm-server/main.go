// Command gm-server runs the gigmarket reference auth backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/gigmarket/internal/config"
	"github.com/and161185/gigmarket/internal/limiter"
	"github.com/and161185/gigmarket/internal/migrate"
	"github.com/and161185/gigmarket/internal/repository"
	"github.com/and161185/gigmarket/internal/repository/memory"
	"github.com/and161185/gigmarket/internal/repository/postgres"
	grpcserver "github.com/and161185/gigmarket/internal/server/grpc"
	"github.com/and161185/gigmarket/internal/server/httpapi"
	"github.com/and161185/gigmarket/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main parses configuration and hands over to run; the exit code comes back so
// deferred cleanup in run always happens first.
func main() {
	cfg := config.ServerFromEnv()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	logger, _ := zap.NewProduction()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

// run opens storage and serves HTTP plus the gRPC health port until ctx ends or a
// server fails. It returns the process exit code.
func run(ctx context.Context, cfg *config.Server, logger *zap.Logger) int {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("health_addr", cfg.HealthAddr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("config", zap.Error(err))
		return 1
	}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage", zap.Error(err))
		return 1
	}
	defer st.close()

	authSvc := service.NewAuthService(
		st.accounts,
		st.refresh,
		st.lim,
		service.AuthConfig{SignKey: []byte(cfg.JWTKey), AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL},
		logger.Named("auth"),
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go purgeLoop(ctx, authSvc, logger)

	var ipLim *httpapi.IPRateLimiter
	if cfg.RateRPS > 0 {
		ipLim = httpapi.NewIPRateLimiter(cfg.RateRPS, cfg.RateBurst)
	}
	httpSrv := &http.Server{
		Handler:           httpapi.NewRouter(httpapi.NewHandler(authSvc, logger), authSvc, ipLim, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpLis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Error("listen http", zap.Error(err))
		return 1
	}

	var health *grpcserver.Server
	var healthLis net.Listener
	if cfg.HealthAddr != "" {
		var opts []grpc.ServerOption
		if cfg.TLSCert != "" {
			creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				_ = httpLis.Close()
				logger.Error("failed to load TLS cert/key", zap.Error(err))
				return 1
			}
			opts = append(opts, grpc.Creds(creds))
		}
		healthLis, err = net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			_ = httpLis.Close()
			logger.Error("listen grpc health", zap.Error(err))
			return 1
		}
		health = grpcserver.New(logger.Named("grpc"), st.pinger, cfg.Dev, opts...)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", httpLis.Addr().String()), zap.Bool("tls", cfg.TLSCert != ""))
		var err error
		if cfg.TLSCert != "" {
			err = httpSrv.ServeTLS(httpLis, cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpSrv.Serve(httpLis)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if health != nil {
		go health.Watch(ctx, 10*time.Second)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", healthLis.Addr().String()))
			if err := health.Serve(healthLis); err != nil {
				errCh <- err
			}
		}()
	}

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		code = 1
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()
	if health != nil {
		health.Stop(shutdownTimeout)
	}
	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return code
}

type storage struct {
	accounts repository.AccountRepository
	refresh  repository.RefreshTokenRepository
	lim      limiter.Limiter
	pinger   grpcserver.Pinger
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Server, log *zap.Logger) (*storage, error) {
	policy := limiter.Policy{Window: cfg.LimitWindow, MaxFails: cfg.LimitMaxFails, BlockFor: cfg.LimitBlockFor}
	if cfg.Backend == config.BackendMemory {
		log.Warn("using in-memory storage; data is lost on exit")
		return &storage{
			accounts: memory.NewAccounts(),
			refresh:  memory.NewRefreshTokens(),
			lim:      limiter.NewMemory(policy, nil),
			close:    func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.Open(ctx, cfg.DSN, postgres.PoolConfig{MaxConns: 10, MaxConnIdleTime: 5 * time.Minute})
	if err != nil {
		return nil, err
	}
	return &storage{
		accounts: postgres.NewAccountRepo(db),
		refresh:  postgres.NewRefreshRepo(db),
		lim:      limiter.NewPG(db.Pool, policy),
		pinger:   db,
		close:    db.Close,
	}, nil
}

func purgeLoop(ctx context.Context, svc *service.AuthServiceImpl, log *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
