package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vrsandeep/mango-pages/internal/models"
)

// handleOpenPreview opens an item that is not stored. Only one preview exists
// at a time; its pages are served under the scratch item id.
func (s *Server) handleOpenPreview(w http.ResponseWriter, r *http.Request) {
	var payload itemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.app.Fetchers().OpenPreview(models.Item{
		Title:     strings.TrimSpace(payload.Title),
		Source:    *payload.Source,
		URL:       payload.URL,
		PageCount: payload.PageCount,
	})
	if err != nil {
		respondWithFetchError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         f.ItemID(),
		"page_count": payload.PageCount,
	})
}

func (s *Server) handleClosePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Fetchers().ClosePreview(); err != nil {
		respondWithFetchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
