// Package grpcserver exposes the standard gRPC health service for the
// dashboard. The dashboard service reports SERVING only while a credential
// is present and the last fetch succeeded.
package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the dashboard.
const ServiceName = "jobmate.dashboard.v1.Dashboard"

// Credential reports whether a session is active.
type Credential interface {
	Authenticated() bool
}

// FetchState reports the outcome of the last fetch.
type FetchState interface {
	LastError() error
}

// Server wraps health.Server and recomputes the dashboard status on every
// Check.
type Server struct {
	*health.Server
	cred  Credential
	fetch FetchState
}

// NewServer returns a health server for the given state sources.
func NewServer(cred Credential, fetch FetchState) *Server {
	s := &Server{Server: health.NewServer(), cred: cred, fetch: fetch}
	s.Refresh()
	return s
}

// Refresh pushes the current status to the health server, which also
// notifies Watch streams.
func (s *Server) Refresh() {
	s.SetServingStatus(ServiceName, s.status())
}

func (s *Server) status() healthpb.HealthCheckResponse_ServingStatus {
	if !s.cred.Authenticated() || s.fetch.LastError() != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Check implements grpc_health_v1.HealthServer.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() == ServiceName {
		s.Refresh()
	}
	return s.Server.Check(ctx, req)
}

// Register mounts the health service on gs.
func (s *Server) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s)
}
