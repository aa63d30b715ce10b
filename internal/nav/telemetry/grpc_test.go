package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startGRPC(t *testing.T, pub *Publisher) *TelemetryClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewGRPCService(pub, 4))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Stop(time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewTelemetryClient(conn)
}

func TestGRPCLatest(t *testing.T) {
	pub := NewPublisher()
	client := startGRPC(t, pub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Latest(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	pub.PublishFrame(testFrame(9))
	st, err := client.Latest(ctx)
	require.NoError(t, err)

	fields := st.AsMap()
	assert.Equal(t, float64(9), fields["seq"])
	assert.Equal(t, "AVOID", fields["state"])
	sectors := fields["sectors"].(map[string]any)
	assert.Nil(t, sectors["left"])
}

func TestGRPCWatch(t *testing.T) {
	pub := NewPublisher()
	client := startGRPC(t, pub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return pub.Stats().Subscribers == 1 },
		2*time.Second, 5*time.Millisecond)

	pub.PublishFrame(testFrame(1))
	pub.PublishFrame(testFrame(2))

	for want := 1; want <= 2; want++ {
		st, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, float64(want), st.AsMap()["seq"])
	}

	cancel()
	require.Eventually(t, func() bool { return pub.Stats().Subscribers == 0 },
		2*time.Second, 5*time.Millisecond)
}
