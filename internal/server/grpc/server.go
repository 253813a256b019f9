package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	backend   *api.Backend
	logger    logging.Logger
	jwtSecret []byte
	timeout   time.Duration
}

func NewGRPCServer(a string, l logging.Logger, b *api.Backend, secretKey string, timeout time.Duration) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		backend:   b,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		timeout:   timeout,
	}, nil
}

// NewServer creates a grpc.Server with the interceptors and the service
// registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.timeoutInterceptor, s.accessTokenInterceptor))
	RegisterDataKeeperServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
