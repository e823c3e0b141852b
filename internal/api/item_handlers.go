package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/store"
	"github.com/vrsandeep/mango-pages/internal/util"
)

type itemPayload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Source    *models.Source `json:"source"`
	URL       string         `json:"url"`
	PageCount int            `json:"page_count"`
}

func (p *itemPayload) validate() error {
	if p.Source == nil {
		return errors.New("source is required")
	}
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("url is required")
	}
	if p.PageCount < 0 {
		return errors.New("page_count cannot be negative")
	}
	return nil
}

// itemIDParam reads and validates the {itemID} route parameter.
func itemIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	itemID := chi.URLParam(r, "itemID")
	if err := util.ValidateItemID(itemID); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return itemID, true
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	RespondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var payload itemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if payload.ID == "" {
		payload.ID = util.NewItemID()
	} else if err := util.ValidateItemID(payload.ID); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.ID == s.app.Config().Storage.ScratchID {
		RespondWithError(w, http.StatusConflict, "Item id is reserved for previews")
		return
	}
	if _, err := s.store.GetItem(payload.ID); err == nil {
		RespondWithError(w, http.StatusConflict, "An item with this id already exists")
		return
	}

	item := &models.Item{
		ID:        payload.ID,
		Title:     payload.Title,
		Source:    *payload.Source,
		URL:       payload.URL,
		PageCount: payload.PageCount,
	}
	if err := s.store.CreateItem(item); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to create item")
		return
	}
	RespondWithJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	item, err := s.store.GetItem(itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		RespondWithError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load item")
		return
	}

	downloaded, err := s.app.Pages().Count(itemID)
	if err != nil {
		respondWithFetchError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"item":             item,
		"downloaded_pages": downloaded,
	})
}

// handleDeleteItem removes the row first, so no request can open the item
// again, then closes its fetcher and only then clears its pages.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteItem(itemID); err != nil {
		respondWithFetchError(w, err)
		return
	}
	if err := s.app.Fetchers().Close(itemID); err != nil {
		respondWithFetchError(w, err)
		return
	}
	if err := s.app.Pages().ClearAll(itemID); err != nil {
		respondWithFetchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdatePageCount(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		PageCount int `json:"page_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.PageCount < 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := s.store.UpdatePageCount(itemID, payload.PageCount); err != nil {
		respondWithFetchError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"page_count": payload.PageCount})
}

// handleCloseItem releases the fetcher of an item the viewer has left.
// Cached pages stay on disk.
func (s *Server) handleCloseItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	if err := s.app.Fetchers().Close(itemID); err != nil {
		respondWithFetchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
