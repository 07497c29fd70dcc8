package invocation

import (
	"fmt"
	"strings"
)

// NodeError is the failure of one operation on one database
type NodeError struct {
	Database string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Database, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// AllNodesFailedError reports an all-node invocation in which no database
// succeeded. Failures are ordered by database id.
type AllNodesFailedError struct {
	Cluster  string
	Failures []*NodeError
}

func (e *AllNodesFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("all %d databases in cluster %s failed: %s", len(e.Failures), e.Cluster, strings.Join(parts, "; "))
}

// Unwrap exposes every per-database failure to errors.Is and errors.As
func (e *AllNodesFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// NoActiveDatabasesError reports an invocation against a cluster with an empty active set
type NoActiveDatabasesError struct {
	Cluster string
}

func (e *NoActiveDatabasesError) Error() string {
	return fmt.Sprintf("cluster %s has no active databases", e.Cluster)
}
