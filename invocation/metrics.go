package invocation

import (
	"time"

	"github.com/maxpert/mirrordb/telemetry"
)

// invocationMetrics records timing and outcome of one invocation
type invocationMetrics struct {
	mode      Mode
	startTime time.Time
}

func newInvocationMetrics(mode Mode) *invocationMetrics {
	telemetry.ActiveInvocations.Inc()
	return &invocationMetrics{
		mode:      mode,
		startTime: time.Now(),
	}
}

func (m *invocationMetrics) finish(result string) {
	telemetry.ActiveInvocations.Dec()
	telemetry.InvocationsTotal.With(string(m.mode), result).Inc()
	telemetry.InvocationDurationSeconds.With(string(m.mode)).Observe(time.Since(m.startTime).Seconds())
}

// RecordNodeFailure counts one failed per-node operation
func (m *invocationMetrics) RecordNodeFailure() {
	telemetry.NodeFailuresTotal.With(string(m.mode)).Inc()
}

// RecordFailure records a failed invocation and returns err unchanged (pass-through)
func (m *invocationMetrics) RecordFailure(err error) error {
	m.finish("failed")
	return err
}

// RecordSuccess records a completed invocation. Fan-outs with failed nodes
// are recorded as partial.
func (m *invocationMetrics) RecordSuccess(succeeded, failed int) {
	if m.mode == ModeWrite {
		telemetry.FanOutSuccesses.Observe(float64(succeeded))
	}
	if failed > 0 {
		m.finish("partial")
		return
	}
	m.finish("success")
}
