// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// PingHandler answers GET / for liveness checks.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// ListLobbiesHandler returns the live lobby snapshots for debugging and
// dashboards.
func ListLobbiesHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbies := srv.Lobbies.List()
		out := make([]map[string]any, 0, len(lobbies))
		for _, l := range lobbies {
			snap := l.Snapshot()
			out = append(out, map[string]any{
				"id":        snap.ID.String(),
				"leader":    snap.Leader,
				"matchType": snap.MatchType,
				"mapId":     snap.MapID,
				"players":   snap.Players,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
