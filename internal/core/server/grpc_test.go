package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/solatis/mutguard/internal/core/api"
	"github.com/solatis/mutguard/internal/core/auth"
	"github.com/solatis/mutguard/internal/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer serves a fresh registry over bufconn and returns a connection.
func startServer(t *testing.T, keys []string) *grpc.ClientConn {
	t.Helper()
	cfg := config.DefaultConfig()

	registry, err := api.NewRegistry(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	service, err := api.NewGuardService(registry)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(keys)
	require.NoError(t, err)

	srv, err := NewGRPCServer(&cfg.Server, service, authenticator, zap.NewNop())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		err := <-done
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Errorf("serve: %v", err)
		}
	})
	return conn
}

func TestGuardService_OverGRPC(t *testing.T) {
	client := NewClient(startServer(t, nil), "")
	ctx := context.Background()

	resp, err := client.CallMap(ctx, MethodCreate, map[string]any{
		"name":         "flags",
		"value":        map[string]any{"beta": false},
		"maxMutations": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Fields["remaining"].GetNumberValue())

	resp, err = client.CallMap(ctx, MethodSetPath, map[string]any{"name": "flags", "path": "beta", "value": true})
	require.NoError(t, err)
	assert.True(t, resp.Fields["isFrozen"].GetBoolValue())

	_, err = client.CallMap(ctx, MethodSetPath, map[string]any{"name": "flags", "path": "beta", "value": false})
	st := status.Convert(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Contains(t, st.Message(), "cannot mutate frozen value")

	resp, err = client.CallMap(ctx, MethodSnapshot, map[string]any{"name": "flags"})
	require.NoError(t, err)
	assert.True(t, resp.Fields["value"].GetStructValue().Fields["beta"].GetBoolValue())
	assert.True(t, resp.Fields["isViolated"].GetBoolValue())

	resp, err = client.Call(ctx, MethodList, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Fields["guards"].GetListValue().GetValues(), 1)
}

func TestGuardService_RequiresAPIKey(t *testing.T) {
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	conn := startServer(t, []string{key})
	ctx := context.Background()

	_, err = NewClient(conn, "").Call(ctx, MethodList, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	other, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	_, err = NewClient(conn, other).Call(ctx, MethodList, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = NewClient(conn, key).Call(ctx, MethodList, &structpb.Struct{})
	assert.NoError(t, err)

	// Health checks stay open.
	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, health.Status)
}

func TestGuardService_UnknownMethod(t *testing.T) {
	client := NewClient(startServer(t, nil), "")
	_, err := client.Call(context.Background(), "Bogus", nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestNewGRPCServer_Validation(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewGRPCServer(nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewGRPCServer(&cfg.Server, nil, nil, nil)
	assert.Error(t, err)
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := recoveryInterceptor(zap.NewNop())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
