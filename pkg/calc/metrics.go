package calc

import (
	"time"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricWorkerRespawnCount = []string{"hubbot", "calc", "worker", "respawn", "count"}
	MetricInvokeFailureCount = []string{"hubbot", "calc", "invoke", "failure", "count"}
	MetricInvokeLatency      = []string{"hubbot", "calc", "invoke", "latency"}
)

func metricsRespawn() {
	metrics.Default().IncrCounter(MetricWorkerRespawnCount, 1)
}

func metricsFailure() {
	metrics.Default().IncrCounter(MetricInvokeFailureCount, 1)
}

func metricsLatency(start time.Time) {
	metrics.Default().MeasureSince(MetricInvokeLatency, start)
}
