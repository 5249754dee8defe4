package server

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"go-photostrip-server/config"
)

// Health service names. The empty name is the whole server.
const (
	HealthServer = ""
	HealthCamera = "photostrip.camera"
)

// Health serves the standard gRPC health protocol.
type Health struct {
	grpc   *grpc.Server
	status *health.Server
}

// NewHealth creates the gRPC server with the keep-alive settings from cfg.
func NewHealth(cfg config.ServerConfig) *Health {
	var kaep = keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	var kasp = keepalive.ServerParameters{
		Time:    time.Duration(cfg.KeepaliveTimeSec) * time.Second,
		Timeout: time.Duration(cfg.KeepaliveTimeoutSec) * time.Second,
	}

	gs := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(kaep),
		grpc.KeepaliveParams(kasp),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(HealthServer, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthCamera, healthpb.HealthCheckResponse_SERVING)
	return &Health{grpc: gs, status: hs}
}

// Serve blocks serving health checks on lis.
func (h *Health) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// SetCamera reports whether the capture session can take photos.
func (h *Health) SetCamera(ok bool) {
	if h == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.status.SetServingStatus(HealthCamera, status)
}

// Shutdown flips every service to NOT_SERVING so load balancers drain the
// process, then stops the gRPC server.
func (h *Health) Shutdown() {
	h.status.Shutdown()
	h.grpc.GracefulStop()
}
