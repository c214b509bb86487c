package api

import (
	"net/http"
	"runtime"
	"time"
)

// startTime records process start for the uptime metric.
var startTime = time.Now()

// handleMetrics returns basic operational metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.registry.GetStats()

	metrics := map[string]any{
		"uptime_seconds":     int(time.Since(startTime).Seconds()),
		"goroutines":         runtime.NumGoroutine(),
		"memory_alloc_bytes": mem.Alloc,
		"entities_total":     stats.Total,
		"discovery_pending":  s.inbox.Count(),
		"websocket_clients":  s.hub.ClientCount(),
	}

	if s.bridge != nil {
		metrics["hub_state"] = s.bridge.State().String()
	}
	if s.mqtt != nil {
		metrics["mqtt_connected"] = s.mqtt.IsConnected()
	}
	if s.coordinator != nil {
		metrics["background_discovery"] = s.coordinator.BackgroundActive()
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleHubStatus reports the hub connection and membership snapshot sizes.
func (s *Server) handleHubStatus(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "hub connection not configured")
		return
	}

	status := map[string]any{
		"bridge_id": s.bridge.ID(),
		"state":     s.bridge.State().String(),
		"players":   len(s.bridge.KnownPlayers()),
		"groups":    len(s.bridge.KnownGroups()),
	}

	if s.coordinator != nil {
		status["background_discovery"] = s.coordinator.BackgroundActive()
		if last := s.coordinator.LastScan(); !last.IsZero() {
			status["last_scan"] = last.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleHubPlaylists returns the signed-in account's playlists.
func (s *Server) handleHubPlaylists(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "hub connection not configured")
		return
	}

	playlists := s.bridge.Playlists()
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists, "count": len(playlists)})
}

// handleHubFavorites returns the signed-in account's favourites.
func (s *Server) handleHubFavorites(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "hub connection not configured")
		return
	}

	favorites := s.bridge.Favorites()
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favorites, "count": len(favorites)})
}
