package grpcx

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported next to the overall ("") status.
const ServiceName = "live.v1.Broker"

// Server exposes the standard gRPC health service for the broker.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

func NewServer(timeout time.Duration) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(timeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)

	s := &Server{srv: srv, health: h}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the broker status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// GracefulStop reports NOT_SERVING to watchers before draining.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
