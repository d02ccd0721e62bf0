package core

import (
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
	hmetrics "github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/metrics"
)

// BuildRouter assembles the server handler. The broker runs as middleware
// ahead of routing: requests under a configured prefix never reach the mux,
// everything else falls through to /metrics or the JSON 404.
func BuildRouter(d BuildDeps) http.Handler {
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))

	if d.LogMW != nil {
		r.Use(d.LogMW.Middleware())
	}
	r.Use(hmetrics.Collect())
	if d.Broker != nil {
		r.Use(d.Broker)
	}

	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics)
	}
	r.NotFound(http.HandlerFunc(notFound))
	return r.Mux()
}
