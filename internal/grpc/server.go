package grpc

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-checked service name; "" covers the whole server.
const ServiceName = "go_cart.checkout"

// Server is the operational gRPC endpoint: health checking and reflection.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewServer(log *zap.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		health: health.NewServer(),
		log:    log.Named("grpc"),
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.recoverUnary, s.errorUnary),
	}
	s.srv = grpc.NewServer(append(base, opts...)...)

	healthpb.RegisterHealthServer(s.srv, s.health)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(s.srv)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Registrar exposes the underlying server for additional services.
func (s *Server) Registrar() grpc.ServiceRegistrar {
	return s.srv
}

// MarkServing is called once every dependency is wired.
func (s *Server) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// MarkNotServing flips health before shutdown so load balancers drain first.
func (s *Server) MarkNotServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// Stop marks the server NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *Server) errorUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		st := StatusFromError(err)
		if st.Code() == codes.Internal {
			s.log.Error("unhandled error", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return nil, st.Err()
	}
	return resp, nil
}

func (s *Server) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in grpc handler", zap.String("method", info.FullMethod), zap.Any("panic", r))
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
