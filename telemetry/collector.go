package telemetry

import (
	"context"
	"time"
)

// ClusterSource is what the gauge sampler reads from a cluster
type ClusterSource interface {
	ActiveDatabases() []string
	InactiveDatabases() []string
	LockKeyCount() int
	ExecutorStats() (workers, busy, queued int)
}

// Sample copies the cluster's membership, lock and worker pool figures into
// their gauges
func Sample(src ClusterSource) {
	UpdateClusterStats(len(src.ActiveDatabases()), len(src.InactiveDatabases()))
	LockKeys.Set(float64(src.LockKeyCount()))
	UpdateExecutorStats(src.ExecutorStats())
}

// SampleEvery samples src immediately and then every interval until ctx is
// done. It blocks; run it on its own goroutine.
func SampleEvery(ctx context.Context, src ClusterSource, interval time.Duration) {
	Sample(src)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Sample(src)
		}
	}
}
