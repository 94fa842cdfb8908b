package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/funvibe/torrentrpc/internal/rpc"
)

// NewGRPC returns a gRPC server exposing torrentrpc.Commands. Calls run on
// loop.
func NewGRPC(bridge *rpc.Bridge, loop *Loop, metrics *Metrics) (*grpc.Server, error) {
	svc, err := rpc.NewGRPCService(bridge, loop)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			metrics.ObserveRequest("grpc")
			return handler(ctx, req)
		},
	))
	svc.Register(srv)
	return srv, nil
}
