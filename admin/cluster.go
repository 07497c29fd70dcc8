package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

type databaseInfo struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
	Active bool   `json:"active"`
	Alive  *bool  `json:"alive,omitempty"`
}

type executorInfo struct {
	Workers int `json:"workers"`
	Busy    int `json:"busy"`
	Queued  int `json:"queued"`
}

type clusterInfo struct {
	ID        string         `json:"id"`
	Active    []string       `json:"active"`
	Inactive  []string       `json:"inactive"`
	Databases []databaseInfo `json:"databases"`
	LockKeys  int            `json:"lock_keys"`
	Executor  executorInfo   `json:"executor"`
}

type membershipChange struct {
	ID      string `json:"id"`
	Active  bool   `json:"active"`
	Changed bool   `json:"changed"`
}

// handleCluster handles GET /admin/cluster
func (h *AdminHandlers) handleCluster(w http.ResponseWriter, r *http.Request) {
	c := h.cluster
	info := clusterInfo{
		ID:       c.ID(),
		Active:   c.ActiveDatabases(),
		Inactive: c.InactiveDatabases(),
		LockKeys: c.LockKeyCount(),
	}
	info.Executor.Workers, info.Executor.Busy, info.Executor.Queued = c.ExecutorStats()

	for _, n := range c.Nodes() {
		info.Databases = append(info.Databases, databaseInfo{
			ID:     n.ID(),
			Weight: n.Weight(),
			Active: c.IsActive(n),
		})
	}

	writeJSONResponse(w, info)
}

// handleDatabase handles GET /admin/cluster/databases/{id}. The response
// includes a live probe of the database.
func (h *AdminHandlers) handleDatabase(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}

	alive := h.cluster.IsAlive(r.Context(), n)
	writeJSONResponse(w, databaseInfo{
		ID:     n.ID(),
		Weight: n.Weight(),
		Active: h.cluster.IsActive(n),
		Alive:  &alive,
	})
}

// handleActivate handles POST /admin/cluster/databases/{id}/activate
func (h *AdminHandlers) handleActivate(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}

	changed, err := h.cluster.Activate(r.Context(), n)
	if err != nil {
		var syncErr *cluster.SynchronizationError
		if errors.As(err, &syncErr) {
			writeErrorResponse(w, http.StatusConflict, err.Error())
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("cluster", h.cluster.ID()).Str("database", n.ID()).Bool("changed", changed).Msg("Activation requested by admin")
	writeJSONResponse(w, membershipChange{ID: n.ID(), Active: true, Changed: changed})
}

// handleDeactivate handles POST /admin/cluster/databases/{id}/deactivate
func (h *AdminHandlers) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}

	changed := h.cluster.Deactivate(n)
	log.Info().Str("cluster", h.cluster.ID()).Str("database", n.ID()).Bool("changed", changed).Msg("Deactivation requested by admin")
	writeJSONResponse(w, membershipChange{ID: n.ID(), Active: false, Changed: changed})
}

func (h *AdminHandlers) lookup(w http.ResponseWriter, r *http.Request) (node.Node, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeErrorResponse(w, http.StatusBadRequest, "database id is required")
		return nil, false
	}

	n, err := h.cluster.Database(id)
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return n, true
}
