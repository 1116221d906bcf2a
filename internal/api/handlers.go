package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/server"
)

// ========== Status handlers ==========

// HandleStatus reports the daemon counters
func (s *RESTServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.StatsSnapshot()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"clients": stats.Clients,
		"peers":   stats.Peers,
		"driver":  stats.Driver,
		"device":  stats.Device,
		"remotes": s.db.Snapshot().Len(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleVersion reports the daemon version
func (s *RESTServer) HandleVersion(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"version": server.Version,
	})
}

// HandleClients reports the connection counters
func (s *RESTServer) HandleClients(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.StatsSnapshot()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total": stats.Clients,
		"peers": stats.Peers,
	})
}

// HandleListRemotes lists all configured remotes
func (s *RESTServer) HandleListRemotes(w http.ResponseWriter, r *http.Request) {
	snap := s.db.Snapshot()
	list := make([]map[string]interface{}, 0, snap.Len())
	for _, rem := range snap.All() {
		list = append(list, map[string]interface{}{
			"name":  rem.Name,
			"bits":  rem.Bits,
			"codes": len(rem.Codes),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"remotes": list,
		"total":   len(list),
	})
}

// HandleGetRemote returns one remote with its full code table
func (s *RESTServer) HandleGetRemote(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rem, ok := s.db.Snapshot().Find(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "remote not found")
		return
	}

	codes := make([]map[string]string, 0, len(rem.Codes))
	for _, c := range rem.Codes {
		codes = append(codes, map[string]string{
			"name":  c.Name,
			"value": fmt.Sprintf("0x%X", c.Value),
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":            rem.Name,
		"bits":            rem.Bits,
		"flags":           rem.Flags,
		"gap":             rem.Gap,
		"min_repeat":      rem.MinRepeat,
		"toggle_bit_mask": fmt.Sprintf("0x%X", rem.ToggleBitMask),
		"codes":           codes,
	})
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
