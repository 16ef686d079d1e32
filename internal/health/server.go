// Package health exposes the recorder state through the standard gRPC
// health checking protocol.
package health

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"Kakofonix/astrec/internal/capture"
	"Kakofonix/astrec/internal/logger"
)

// Service is the name under which the capture state is reported. The empty
// service name reports the same status.
const Service = "astrec.Capture"

// Server is a gRPC health server tracking the capture state.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *logger.Logger
}

// NewServer creates a server reporting NOT_SERVING until capture is active.
func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, log: log}
	s.SetState(capture.Idle)
	return s
}

// SetState maps a capture state to a serving status. It is safe to use as
// the recorder's state hook.
func (s *Server) SetState(state capture.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == capture.Active {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, status)
	s.health.SetServingStatus("", status)
}

// Serve answers health checks on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(ln) }()
	s.log.Info("[health] gRPC health service listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	}
}
