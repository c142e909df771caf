package httpapi

import (
	"net/http"
)

func (s *Server) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sync.Status(r.Context()))
}

func (s *Server) ForceSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sync.ForceSync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) ClearSyncErrors(w http.ResponseWriter, r *http.Request) {
	s.Sync.ClearErrors()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
