// Package admin serves the management HTTP surface: cluster membership
// inspection, manual activation and deactivation, and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

// ClusterManager is the part of a cluster the admin surface drives
type ClusterManager interface {
	ID() string
	Nodes() []node.Node
	ActiveDatabases() []string
	InactiveDatabases() []string
	Database(id string) (node.Node, error)
	IsActive(n node.Node) bool
	IsAlive(ctx context.Context, n node.Node) bool
	Activate(ctx context.Context, n node.Node) (bool, error)
	Deactivate(n node.Node) bool
	LockKeyCount() int
	ExecutorStats() (workers, busy, queued int)
}

// AdminHandlers handles admin API endpoints for one cluster
type AdminHandlers struct {
	cluster ClusterManager
}

func NewAdminHandlers(cluster ClusterManager) *AdminHandlers {
	return &AdminHandlers{cluster: cluster}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"data": data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
