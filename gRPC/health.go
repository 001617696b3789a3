// Package rpc exposes the standard gRPC health service so orchestrators can
// probe the front end and, separately, the detection API behind it.
package rpc

import (
	"fmt"
	"net"

	"TableDetFront/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// UpstreamService is the health service name that tracks the detection API.
const UpstreamService = "tabledet.Upstream"

// NewServer builds a gRPC server with the health and reflection services.
// The front end reports SERVING; the upstream starts NOT_SERVING until the
// first probe says otherwise.
func NewServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(UpstreamService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, hs
}

// SetUpstream records the detection API status.
func SetUpstream(hs *health.Server, healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(UpstreamService, status)
}

// StartGRPCServer listens on port and serves in the background.
func StartGRPCServer(port int) (*grpc.Server, *health.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s, hs := NewServer()
	go func() {
		logger.Log().Info("gRPC health server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return s, hs, nil
}
