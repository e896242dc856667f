package metrics

import (
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// PromSink publishes usage events to the Prometheus collectors. It is the
// default sink wired by the server binary; library callers may swap in
// their own.
type PromSink struct{}

// NewPromSink returns a sink backed by the package collectors.
func NewPromSink() *PromSink {
	return &PromSink{}
}

// Record implements types.UsageSink.
func (*PromSink) Record(event types.UsageEvent) {
	tier := string(event.Tier)

	result := "failure"
	if event.Success {
		result = "success"
	}
	GenerationAttempts.WithLabelValues(tier, result).Inc()
	GenerationLatency.WithLabelValues(tier).Observe(event.Duration.Seconds())
	PromptTokens.WithLabelValues(tier).Add(float64(event.TokenEstimate))
}
