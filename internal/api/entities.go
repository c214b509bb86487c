package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soundweave/soundweave-core/internal/entity"
)

// handleListEntities returns all adopted entities, with optional query filters.
//
// Query parameters:
//   - kind: filter by kind (player, group)
//   - health: filter by health status (online, offline, unknown)
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if kindStr := r.URL.Query().Get("kind"); kindStr != "" {
		kind := entity.Kind(kindStr)
		if !kind.Valid() {
			writeBadRequest(w, "unknown entity kind: "+kindStr)
			return
		}
		entities, err := s.registry.ListByKind(ctx, kind)
		if err != nil {
			writeInternalError(w, "failed to list entities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
		return
	}

	if healthStr := r.URL.Query().Get("health"); healthStr != "" {
		entities, err := s.registry.ListByHealth(ctx, entity.HealthStatus(healthStr))
		if err != nil {
			writeInternalError(w, "failed to list entities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
		return
	}

	entities, err := s.registry.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list entities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

// handleGetEntity returns a single entity by ID.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to get entity")
		return
	}

	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEntity removes an adopted entity. The next scan reports the
// backing player or group as a fresh discovery result.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to delete entity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleEntityStats returns registry statistics.
func (s *Server) handleEntityStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     stats.Total,
		"by_kind":   stats.ByKind,
		"by_health": stats.ByHealth,
	})
}
