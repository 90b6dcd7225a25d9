package dependencies

import (
	"errors"
	"net"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	GenerateService = "promptstudio.Generate"
	SpeechService   = "promptstudio.Speech"
)

// Health serves grpc.health.v1 for the whole process and for each endpoint.
type Health struct {
	server *grpc.Server
	status *health.Server
	logger *log.Logger
}

func NewHealth() *Health {
	h := &Health{
		server: grpc.NewServer(),
		status: health.NewServer(),
		logger: log.With("component", "health"),
	}
	healthpb.RegisterHealthServer(h.server, h.status)

	for _, svc := range []string{"", GenerateService, SpeechService} {
		h.status.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
	return h
}

// Serve blocks until Close. Closing before Serve runs is not an error.
func (h *Health) Serve(ln net.Listener) error {
	h.logger.Info("grpc health listening", "addr", ln.Addr().String())
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *Health) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus(service, status)
}

// Close flips every service to NOT_SERVING before draining in-flight checks.
func (h *Health) Close() {
	h.status.Shutdown()
	h.server.GracefulStop()
}
