package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// StoreService is the health service name that tracks store liveness.
const StoreService = "roomchat.Store"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes gRPC health (overall and per store) plus reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	store  Pinger
	log    *slog.Logger

	every time.Duration
}

func NewServer(store Pinger, log *slog.Logger, probeEvery time.Duration) *Server {
	if probeEvery <= 0 {
		probeEvery = 5 * time.Second
	}
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log, DefaultCallTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{grpc: gs, health: hs, store: store, log: log, every: probeEvery}
}

func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Watch probes the store until ctx ends and mirrors the result into the
// health service. The overall status follows the store.
func (s *Server) Watch(ctx context.Context) {
	s.probe(ctx)
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING and stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(pctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn("store probe failed", "err", err)
	}
	s.health.SetServingStatus(StoreService, st)
	s.health.SetServingStatus("", st)
}
