// Package api hosts the HTTP server, middleware, and handlers of the poster service.
// Notable routes:
//   - GET /poster?movie=Title serves the cached or freshly scraped poster image.
//   - GET /submit, /data, /delete-all and /view manage the submission log.
//   - GET /cache lists cached titles via the CacheStore snapshot.
//   - GET /healthz / readyz for Kubernetes probes and GET /metrics for Prometheus.
package api
