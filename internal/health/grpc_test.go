package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/benlongcp/lobby/internal/config"
)

func TestServer_ReportsServingUntilStopped(t *testing.T) {
	srv := NewServer(config.HealthConfig{GRPCHost: "127.0.0.1", GRPCPort: 0}, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	cc, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer cc.Close()
	client := healthpb.NewHealthClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, service := range []string{"", LobbyService} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err, "service %q", service)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), "service %q", service)
	}

	srv.SetServing(false)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: LobbyService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	srv.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	srv := NewServer(config.HealthConfig{GRPCHost: "256.0.0.1", GRPCPort: 1}, zaptest.NewLogger(t))
	assert.Error(t, srv.Start())
}
