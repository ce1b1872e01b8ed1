// Package api provides the read-only HTTP inspection endpoint of the DTU
// ingest service.
//
// Routes:
//
//	GET /api/v1/health                      component health
//	GET /api/v1/devices/{id}/current        current snapshot of a device
//	GET /api/v1/devices/{id}/snapshots      recent snapshots, newest first (?limit=N)
//	GET /metrics                            Prometheus exposition
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
