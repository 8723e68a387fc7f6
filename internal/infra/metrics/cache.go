package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(insightCacheEntries) }

var insightCacheEntries = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "insight_cache_entries",
		Help: "Number of tabs currently holding a cached insight.",
	},
)

func SetInsightCacheEntries(n int) {
	insightCacheEntries.Set(float64(n))
}
