// Package grpcserver runs the backend's gRPC side port with health checks for orchestrators.
package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name reported alongside the overall status.
const ServiceName = "gigmarket.Auth"

// Pinger checks a dependency; *postgres.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a gRPC server exposing grpc.health.v1.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	pinger Pinger
	log    *zap.Logger

	mu      sync.Mutex
	serving bool
}

// New builds the server with recover and logging interceptors on both call kinds.
// With reflect set, server reflection is registered (dev only).
func New(log *zap.Logger, pinger Pinger, reflect bool, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := &Server{
		srv:    grpc.NewServer(opts...),
		health: health.NewServer(),
		pinger: pinger,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	if reflect {
		reflection.Register(s.srv)
	}
	s.set(false)
	return s
}

func (s *Server) set(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)

	s.mu.Lock()
	changed := s.serving != ok
	s.serving = ok
	s.mu.Unlock()
	if changed {
		s.log.Info("health", zap.String("status", st.String()))
	}
}

// Check pings the dependency once and publishes the result.
func (s *Server) Check(ctx context.Context) bool {
	ok := true
	if s.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.pinger.Ping(pctx)
		cancel()
		if err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			ok = false
		}
	}
	s.set(ok)
	return ok
}

// Watch checks every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error { return s.srv.Serve(lis) }

// Stop marks the server not serving and stops gracefully, forcing after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.srv.Stop()
	}
}
