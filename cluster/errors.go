package cluster

import "fmt"

// InvalidDatabaseError reports a database id that is not registered in the cluster
type InvalidDatabaseError struct {
	Cluster  string
	Database string
}

func (e *InvalidDatabaseError) Error() string {
	return fmt.Sprintf("database %s is not a member of cluster %s", e.Database, e.Cluster)
}

// SynchronizationError reports a failed synchronization during activation.
// The database stays inactive.
type SynchronizationError struct {
	Cluster  string
	Database string
	Err      error
}

func (e *SynchronizationError) Error() string {
	return fmt.Sprintf("failed to synchronize database %s in cluster %s: %v", e.Database, e.Cluster, e.Err)
}

func (e *SynchronizationError) Unwrap() error {
	return e.Err
}
