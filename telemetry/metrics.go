package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// InvocationBuckets for single-node reads and all-node fan-outs
	InvocationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// LockWaitBuckets for time spent waiting on a statement lock key
	LockWaitBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	// SyncBuckets for node synchronization during activation
	SyncBuckets = []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

	// FanOutBuckets for number of nodes that succeeded per fan-out
	FanOutBuckets = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
)

// Cluster Membership Metrics
var (
	// ClusterDatabases tracks database count by state (active, inactive)
	ClusterDatabases GaugeVec = nopVec[Gauge](nop{})

	// ActivationsTotal counts activation attempts by result (success, failed, noop)
	ActivationsTotal CounterVec = nopVec[Counter](nop{})

	// DeactivationsTotal counts database deactivations
	DeactivationsTotal Counter = nop{}

	// SynchronizationSeconds measures synchronization duration during activation
	SynchronizationSeconds Histogram = nop{}

	// StatePersistFailuresTotal counts failed writes of the active set
	StatePersistFailuresTotal Counter = nop{}

	// LivenessChecksTotal counts liveness checks by result (alive, dead)
	LivenessChecksTotal CounterVec = nopVec[Counter](nop{})
)

// Invocation Metrics
var (
	// InvocationsTotal counts invocations by mode (read, write) and result (success, partial, failed)
	InvocationsTotal CounterVec = nopVec[Counter](nop{})

	// InvocationDurationSeconds measures invocation latency by mode
	InvocationDurationSeconds HistogramVec = nopVec[Histogram](nop{})

	// NodeFailuresTotal counts per-node operation failures by mode
	NodeFailuresTotal CounterVec = nopVec[Counter](nop{})

	// FanOutSuccesses measures nodes that succeeded per all-node invocation
	FanOutSuccesses Histogram = nop{}

	// BalancerSelectionsTotal counts read routing decisions by database
	BalancerSelectionsTotal CounterVec = nopVec[Counter](nop{})

	// ActiveInvocations tracks invocations currently in flight
	ActiveInvocations Gauge = nop{}
)

// Locking Metrics
var (
	// LockWaitSeconds measures time waiting for a statement lock key
	LockWaitSeconds Histogram = nop{}

	// LockKeys tracks the number of lock keys ever created
	LockKeys Gauge = nop{}

	// SerializedStatementsTotal counts statements executed under a lock key
	SerializedStatementsTotal Counter = nop{}
)

// Worker Pool Metrics
var (
	// ExecutorWorkers tracks pool workers by state (total, busy)
	ExecutorWorkers GaugeVec = nopVec[Gauge](nop{})

	// ExecutorQueued tracks tasks waiting for a free worker
	ExecutorQueued Gauge = nop{}
)

// Event Metrics
var (
	// EventsPublishedTotal counts membership events by sink and result
	EventsPublishedTotal CounterVec = nopVec[Counter](nop{})
)

func initMetrics() {
	ClusterDatabases = gaugeVec("cluster_databases", "Databases in the cluster by state", "state")
	ActivationsTotal = counterVec("activations_total", "Database activation attempts by result", "result")
	DeactivationsTotal = counter("deactivations_total", "Total database deactivations")
	SynchronizationSeconds = histogram("synchronization_seconds", "Synchronization duration during activation in seconds", SyncBuckets)
	StatePersistFailuresTotal = counter("state_persist_failures_total", "Total failures persisting the active set")
	LivenessChecksTotal = counterVec("liveness_checks_total", "Liveness checks by result", "result")

	InvocationsTotal = counterVec("invocations_total", "Total invocations by mode and result", "mode", "result")
	InvocationDurationSeconds = histogramVec("invocation_duration_seconds", "Invocation duration in seconds", InvocationBuckets, "mode")
	NodeFailuresTotal = counterVec("node_failures_total", "Per-database operation failures by mode", "mode")
	FanOutSuccesses = histogram("fanout_successes", "Databases that succeeded per fan-out", FanOutBuckets)
	BalancerSelectionsTotal = counterVec("balancer_selections_total", "Read routing decisions by database", "database")
	ActiveInvocations = gauge("active_invocations", "Invocations currently in flight")

	LockWaitSeconds = histogram("lock_wait_seconds", "Time waiting for a statement lock key in seconds", LockWaitBuckets)
	LockKeys = gauge("lock_keys", "Statement lock keys created")
	SerializedStatementsTotal = counter("serialized_statements_total", "Statements executed under a lock key")

	ExecutorWorkers = gaugeVec("executor_workers", "Worker pool goroutines by state", "state")
	ExecutorQueued = gauge("executor_queued", "Tasks waiting for a free worker")

	EventsPublishedTotal = counterVec("events_published_total", "Membership events published by sink and result", "sink", "result")
}

// UpdateClusterStats updates membership gauges
func UpdateClusterStats(active, inactive int) {
	ClusterDatabases.With("active").Set(float64(active))
	ClusterDatabases.With("inactive").Set(float64(inactive))
}

// UpdateExecutorStats updates worker pool gauges
func UpdateExecutorStats(workers, busy, queued int) {
	ExecutorWorkers.With("total").Set(float64(workers))
	ExecutorWorkers.With("busy").Set(float64(busy))
	ExecutorQueued.Set(float64(queued))
}
