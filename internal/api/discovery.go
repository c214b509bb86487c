package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soundweave/soundweave-core/internal/discovery"
	"github.com/soundweave/soundweave-core/internal/entity"
)

// handleListDiscoveryResults returns pending discovery inbox results.
func (s *Server) handleListDiscoveryResults(w http.ResponseWriter, _ *http.Request) {
	results := s.inbox.List()
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// handleApproveDiscoveryResult adopts a pending result into the entity
// registry.
func (s *Server) handleApproveDiscoveryResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := s.inbox.Approve(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, discovery.ErrResultNotFound):
			writeNotFound(w, "discovery result not found")
		case errors.Is(err, entity.ErrExists):
			writeConflict(w, "entity already adopted")
		default:
			writeInternalError(w, "failed to adopt discovery result")
		}
		return
	}

	writeJSON(w, http.StatusCreated, e)
}

// handleTriggerScan starts an on-demand scan session against the hub. The
// session runs asynchronously; results land in the discovery inbox.
func (s *Server) handleTriggerScan(w http.ResponseWriter, _ *http.Request) {
	if s.coordinator == nil {
		writeUnavailable(w, "hub connection not configured")
		return
	}

	s.coordinator.TriggerScanSession()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scanning"})
}
