package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pollLoopsStarted, pollAttemptsTotal, pollOutcomesTotal) }

var pollLoopsStarted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_loops_started_total",
		Help: "Poll loops started, labeled by loop kind and workflow.",
	},
	[]string{"kind", "workflow"}, // kind: 'report', 'insight', 'group_insight'
)

var pollAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_attempts_total",
		Help: "Status requests issued by poll loops.",
	},
	[]string{"kind"},
)

var pollOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_outcomes_total",
		Help: "Finished poll loops, labeled by kind and outcome.",
	},
	[]string{"kind", "outcome"}, // 'completed', 'failed', 'timeout', 'transport_error', 'canceled'
)

func IncPollStarted(kind, workflow string) {
	pollLoopsStarted.WithLabelValues(norm(kind), norm(workflow)).Inc()
}

func IncPollAttempt(kind string) {
	pollAttemptsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncPollOutcome(kind, outcome string) {
	pollOutcomesTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}
