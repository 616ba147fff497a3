package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is anything whose liveness decides the service health, the
// database in practice.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes the standard gRPC health service. The status follows
// the result of a periodic ping.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	log      logrus.FieldLogger
}

func NewHealthServer(p Pinger, interval time.Duration, log logrus.FieldLogger) *HealthServer {
	h := &HealthServer{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		pinger:   p,
		interval: interval,
		log:      log,
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Check pings once and updates the reported status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.PingContext(ctx); err != nil {
		h.log.WithError(err).Warn("health ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	return status
}

// Watch keeps the status current until ctx is done.
func (h *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// GracefulStop reports NOT_SERVING to watchers and stops the server.
func (h *HealthServer) GracefulStop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
