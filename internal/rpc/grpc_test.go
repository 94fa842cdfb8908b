package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/funvibe/torrentrpc/internal/object"
)

// inlineExecutor runs calls on the handler goroutine.
type inlineExecutor struct{ calls int }

func (x *inlineExecutor) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.calls++
	fn()
	return nil
}

func newGRPCClient(t *testing.T, b *Bridge, exec Executor) *Client {
	t.Helper()
	svc, err := NewGRPCService(b, exec)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	svc.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c, err := NewClient(conn)
	require.NoError(t, err)
	return c
}

func TestGRPCCall(t *testing.T) {
	b, _, _ := newTestBridge(t)
	exec := &inlineExecutor{}
	c := newGRPCClient(t, b, exec)
	ctx := context.Background()

	v, err := c.Call(ctx, "d.name", testHash)
	require.NoError(t, err)
	require.Equal(t, "ubuntu.iso", v.AsString())

	// The target travels out of band, so a leading string param is kept.
	_, err = c.Call(ctx, "method.insert", "", object.String("test.m"), object.String("multi"))
	require.NoError(t, err)
	_, err = c.Call(ctx, "method.set_key", "", object.String("test.m"), object.String("k"), object.String("print=hi"))
	require.NoError(t, err)

	v, err = c.Call(ctx, "method.list_keys", "", object.String("test.m"))
	require.NoError(t, err)
	require.True(t, object.Strings("k").Equal(v), v.Inspect())

	require.Equal(t, 4, exec.calls)
}

func TestGRPCValues(t *testing.T) {
	b, _, _ := newTestBridge(t)
	c := newGRPCClient(t, b, nil)
	ctx := context.Background()

	m := object.NewMap()
	m.SetKey("n", object.Int(-3))
	m.SetKey("l", object.List(object.String("a"), object.None()))

	_, err := c.Call(ctx, "method.insert", "", object.String("test.list"), object.String("list"))
	require.NoError(t, err)
	_, err = c.Call(ctx, "test.list.set", "", m)
	require.NoError(t, err)

	v, err := c.Call(ctx, "test.list", "")
	require.NoError(t, err)
	require.True(t, object.List(m).Equal(v), v.Inspect())
}

func TestGRPCFaults(t *testing.T) {
	b, _, _ := newTestBridge(t)
	c := newGRPCClient(t, b, nil)

	_, err := c.Call(context.Background(), "nope", "")
	requireFault(t, err, FaultUnknownMethod)

	_, err = c.Call(context.Background(), "d.name", "")
	requireFault(t, err, FaultInput)
}
