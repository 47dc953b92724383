package health

import (
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC health server that follows the checker: SERVING while
// the system is healthy, NOT_SERVING otherwise. service names the reported service in
// addition to the overall "" entry.
func NewGRPCServer(c *Checker, service string) *grpchealth.Server {
	srv := grpchealth.NewServer()
	srv.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	c.OnChange(func(healthy bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if healthy {
			status = healthpb.HealthCheckResponse_SERVING
		}
		srv.SetServingStatus(service, status)
		srv.SetServingStatus("", status)
	})
	return srv
}
