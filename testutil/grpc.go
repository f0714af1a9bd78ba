package testutil

import (
	"context"
	"net"
	"testing"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// BufconnTarget is the target to dial alongside the options returned by
// StartGRPCServer.
const BufconnTarget = "passthrough:///bufconn"

// RunGRPCServer starts an in-memory test server and returns a client
// connection to it.
func RunGRPCServer(t *testing.T, opts ...ServerOption) grpc.ClientConnInterface {
	dialOpts := StartGRPCServer(t, opts...)

	cc, err := grpc.NewClient(BufconnTarget, dialOpts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cc.Close()
	})

	return cc
}

// StartGRPCServer starts an in-memory test server and returns the dial
// options that reach it, for code that manages its own connections.
func StartGRPCServer(t *testing.T, opts ...ServerOption) []grpc.DialOption {
	lis := bufconn.Listen(1024 * 1024)

	o := serverOpts{
		unaryServerInterceptors: []grpc.UnaryServerInterceptor{
			grpc_recovery.UnaryServerInterceptor(),
		},
		streamServerInterceptors: []grpc.StreamServerInterceptor{
			grpc_recovery.StreamServerInterceptor(),
		},
	}

	for _, opt := range opts {
		opt(&o)
	}

	serv := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(o.unaryServerInterceptors...)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(o.streamServerInterceptors...)),
	)

	log := zap.Must(zap.NewDevelopment())
	for _, r := range o.registrants {
		r(serv)
	}

	go func() {
		if err := serv.Serve(lis); err != nil {
			log.Warn("Failed to shutdown test server", zap.Error(err))
		}
	}()

	t.Cleanup(func() {
		serv.Stop()
		if err := lis.Close(); err != nil {
			log.Warn("Failed to shutdown test listener", zap.Error(err))
		}
	})

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithChainUnaryInterceptor(o.unaryClientInterceptors...),
		grpc.WithChainStreamInterceptor(o.streamClientInterceptors...),
	}
}

type serverOpts struct {
	registrants []func(*grpc.Server)

	unaryClientInterceptors  []grpc.UnaryClientInterceptor
	streamClientInterceptors []grpc.StreamClientInterceptor

	unaryServerInterceptors  []grpc.UnaryServerInterceptor
	streamServerInterceptors []grpc.StreamServerInterceptor
}

// ServerOption configures the settings when creating a test server.
type ServerOption func(o *serverOpts)

// WithUnaryClientInterceptor adds a unary client interceptor to the test client.
func WithUnaryClientInterceptor(i grpc.UnaryClientInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.unaryClientInterceptors = append(o.unaryClientInterceptors, i)
	}
}

// WithStreamClientInterceptor adds a stream client interceptor to the test client.
func WithStreamClientInterceptor(i grpc.StreamClientInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.streamClientInterceptors = append(o.streamClientInterceptors, i)
	}
}

// WithUnaryServerInterceptor adds a unary server interceptor to the test server.
func WithUnaryServerInterceptor(i grpc.UnaryServerInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.unaryServerInterceptors = append(o.unaryServerInterceptors, i)
	}
}

// WithStreamServerInterceptor adds a stream server interceptor to the test server.
func WithStreamServerInterceptor(i grpc.StreamServerInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.streamServerInterceptors = append(o.streamServerInterceptors, i)
	}
}

// WithService registers a function to be called in order to bind a service.
func WithService(f func(*grpc.Server)) ServerOption {
	return func(o *serverOpts) {
		o.registrants = append(o.registrants, f)
	}
}
