package hubbot

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricDispatchCount counts messages which resolved to a binding and
	// were handed to a chain.
	MetricDispatchCount        = []string{"hubbot", "dispatch", "count"}
	MetricDispatchDroppedCount = []string{"hubbot", "dispatch", "dropped", "count"}
	MetricHandlerErrorCount    = []string{"hubbot", "handler", "error", "count"}
	MetricSelfDroppedCount     = []string{"hubbot", "dispatch", "self", "dropped", "count"}
	MetricQueueDepth           = []string{"hubbot", "queue", "depth"}
	MetricQueueDroppedBatches  = []string{"hubbot", "queue", "dropped", "batches"}
	MetricTaskTimeoutCount     = []string{"hubbot", "task", "timeout", "count"}
	MetricTaskErrorCount       = []string{"hubbot", "task", "error", "count"}
	MetricRoomJoinCount        = []string{"hubbot", "room", "join", "count"}
	MetricRoomLeaveCount       = []string{"hubbot", "room", "leave", "count"}
	MetricReloadCount          = []string{"hubbot", "reload", "count"}
)

type TelemetryLabel string

var (
	LabelRoom    TelemetryLabel = "room"
	LabelSender  TelemetryLabel = "sender"
	LabelType    TelemetryLabel = "type"
	LabelCommand TelemetryLabel = "command"
	LabelError   TelemetryLabel = "error"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

func metricsInc(name []string, labels []metrics.Label) {
	metrics.Default().IncrCounterWithLabels(name, 1, labels)
}

func metricsGauge(name []string, val float32, labels []metrics.Label) {
	metrics.Default().SetGaugeWithLabels(name, val, labels)
}
