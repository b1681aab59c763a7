package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_http_requests_total",
			Help: "Total number of registry API requests.",
		},
		[]string{"route", "method", "status"},
	)
	metricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stevedore_http_request_duration_seconds",
			Help:    "Registry API request duration in seconds.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"route", "method"},
	)
)

// Metrics records per-route request counts and latencies. Paths are
// collapsed to their route family so repository names never become
// label values.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := NewResponseWriter(w)

		next.ServeHTTP(rw, r)

		route := routeFamily(r.URL.Path)
		metricRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.StatusCode())).Inc()
		metricDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func routeFamily(path string) string {
	switch {
	case path == "/v2/":
		return "base"
	case path == "/v2/_catalog":
		return "catalog"
	case strings.Contains(path, "/blobs/uploads/"):
		return "uploads"
	case strings.Contains(path, "/blobs/"):
		return "blobs"
	case strings.Contains(path, "/manifests/"):
		return "manifests"
	case strings.HasSuffix(path, "/tags/list"):
		return "tags"
	default:
		return "other"
	}
}
