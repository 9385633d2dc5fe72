package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleCacheStrategy(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.admin.DescribePolicy())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache store is not available")
		return
	}

	body, err := json.Marshal(stats)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.Clear(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache store is not available")
		return
	}
	writeJSON(w, http.StatusOK, []byte(`{"message":"cache cleared"}`))
}
