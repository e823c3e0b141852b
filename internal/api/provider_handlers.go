package api

import "net/http"

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providerList := s.app.Registry().GetAll()
	RespondWithJSON(w, http.StatusOK, providerList)
}
