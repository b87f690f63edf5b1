// Package api serves the device server's HTTP status surface.
//
// Two read-only endpoints are exposed for operators and orchestrators:
//
//	GET /api/v1/health   database, MQTT and InfluxDB reachability
//	GET /api/v1/metrics  message counters, database pool and runtime stats
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
