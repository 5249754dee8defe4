package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"go-photostrip-server/config"
)

func TestHealthReportsCamera(t *testing.T) {
	h := NewHealth(config.ServerConfig{KeepaliveTimeSec: 10, KeepaliveTimeoutSec: 3})
	lis := bufconn.Listen(1 << 20)
	go func() { _ = h.Serve(lis) }()
	defer h.Shutdown()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(HealthServer); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("server status = %v", got)
	}
	if got := check(HealthCamera); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("camera status = %v", got)
	}

	h.SetCamera(false)
	if got := check(HealthCamera); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("camera status after failure = %v", got)
	}
	h.SetCamera(true)
	if got := check(HealthCamera); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("camera status after recovery = %v", got)
	}
}

func TestNilHealthIsNoop(t *testing.T) {
	var h *Health
	h.SetCamera(false)
}
