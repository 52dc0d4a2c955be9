package status

import (
	"net/http"

	"github.com/okian/mosaic/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleMetrics serves GET /metrics and GET /healthz from the custom
// metrics registry.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
