package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register enqueues collectors from each file's init().
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds the console collectors to reg (the default registry when nil).
// Only the first call in a process registers anything.
func MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		reg.MustRegister(collectors...)
	})
}

// norm keeps label values low-cardinality and consistent.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
