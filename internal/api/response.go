// Helper functions for sending standardized JSON responses.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"

	"github.com/vrsandeep/mango-pages/internal/fetcher"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/store"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		// If marshaling fails, return an error response
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// statusFor maps a fetch layer error to the HTTP status reported to the viewer.
func statusFor(err error) int {
	var ioErr *models.IOError
	var resErr *models.ResolutionError
	switch {
	case errors.Is(err, models.ErrPageOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrScratchID):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnsupportedSource):
		return http.StatusNotImplemented
	case errors.Is(err, models.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &resErr):
		return http.StatusBadGateway
	case errors.Is(err, fs.ErrNotExist):
		// A local operation on a page that is not cached.
		return http.StatusNotFound
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// respondWithFetchError logs err and writes it with the status matching its kind.
func respondWithFetchError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	RespondWithError(w, code, err.Error())
}
