package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"pricewatch/pkg/logger"
)

// ServiceName is the health-check name for the product store.
const ServiceName = "pricewatch.Products"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server publishes the standard gRPC health service, driven by storage
// reachability.
type Server struct {
	Health *health.Server
	DB     Pinger
	Log    *logger.Logger
}

func NewServer(db Pinger, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{Health: health.NewServer(), DB: db, Log: log}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// NewGRPCServer builds a grpc.Server with the health service registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, s.Health)
	reflection.Register(gs)
	return gs
}

// Check pings storage once and updates the serving status.
func (s *Server) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.DB.PingContext(ctx); err != nil {
		s.Log.Warn("health: storage unreachable", "err", err)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch re-checks storage every interval until ctx is done, then marks the
// service as not serving for the rest of shutdown.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(ServiceName, st)
}
