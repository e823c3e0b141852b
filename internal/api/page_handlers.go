package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vrsandeep/mango-pages/internal/fetcher"
)

const (
	coverWidth  uint = 200
	coverHeight uint = 300
)

// fetcherFor returns the fetcher of the {itemID} in the route. The scratch id
// addresses the open preview, if any.
func (s *Server) fetcherFor(w http.ResponseWriter, r *http.Request) (*fetcher.Fetcher, bool) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return nil, false
	}
	manager := s.app.Fetchers()
	if itemID == manager.ScratchID() {
		f, ok := manager.Get(itemID)
		if !ok {
			RespondWithError(w, http.StatusNotFound, "No preview is open")
		}
		return f, ok
	}
	f, err := manager.Open(itemID)
	if err != nil {
		respondWithFetchError(w, err)
		return nil, false
	}
	return f, true
}

// pageParam parses the zero-based {page} route parameter. Range checks are
// left to the fetcher.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid page number")
		return 0, false
	}
	return page, true
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}
	pages, err := f.DownloadedPages()
	if err != nil {
		respondWithFetchError(w, err)
		return
	}
	if pages == nil {
		pages = []int{}
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"item_id": f.ItemID(),
		"pages":   pages,
	})
}

// handleGetPage serves the image of a page, downloading it on a cache miss,
// and starts pre-loading its neighbours.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	path, err := f.GetPictureURL(r.Context(), page, nil)
	if err != nil {
		respondWithFetchError(w, err)
		return
	}
	f.Preload(page)

	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := f.DeletePicture(r.Context(), page); err != nil {
		respondWithFetchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadPage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	if _, err := f.ReloadPicture(r.Context(), page, nil); err != nil {
		respondWithFetchError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"page": page, "status": "reloaded"})
}

// handleRotatePage turns a cached page a quarter turn; ?dir=ccw rotates
// counter-clockwise, anything else clockwise.
func (s *Server) handleRotatePage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	var clockwise bool
	switch r.URL.Query().Get("dir") {
	case "", "cw":
		clockwise = true
	case "ccw":
		clockwise = false
	default:
		RespondWithError(w, http.StatusBadRequest, "dir must be 'cw' or 'ccw'")
		return
	}

	if err := f.RotatePicture(r.Context(), page, clockwise); err != nil {
		respondWithFetchError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"page": page, "status": "rotated"})
}

// handleGetCover renders a JPEG thumbnail of the first page.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetcherFor(w, r)
	if !ok {
		return
	}

	width, height := coverWidth, coverHeight
	if v, err := strconv.ParseUint(r.URL.Query().Get("w"), 10, 32); err == nil && v > 0 {
		width = uint(v)
	}
	if v, err := strconv.ParseUint(r.URL.Query().Get("h"), 10, 32); err == nil && v > 0 {
		height = uint(v)
	}

	if _, err := f.GetPictureURL(r.Context(), 0, nil); err != nil {
		respondWithFetchError(w, err)
		return
	}
	data, err := f.Thumbnail(r.Context(), 0, width, height)
	if err != nil {
		respondWithFetchError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}
