package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(apiLatencyMs) }

var apiLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "report_api_request_latency_ms",
		Help:    "Report service request latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"endpoint", "success"},
)

func ObserveAPIRequest(endpoint string, took time.Duration, success bool) {
	apiLatencyMs.WithLabelValues(norm(endpoint), strconv.FormatBool(success)).
		Observe(float64(took / time.Millisecond))
}
