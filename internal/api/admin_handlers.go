package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vrsandeep/mango-pages/internal/jobs"
)

// handleRunAdminJob starts a maintenance job by id. Only one job runs at a time.
func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobName string `json:"job_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.JobName) == "" {
		RespondWithError(w, http.StatusBadRequest, "job_name is required")
		return
	}

	err := s.app.JobManager().RunJob(payload.JobName, s.app)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, jobs.ErrJobRunning):
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, _ := s.app.JobManager().Status(payload.JobName)
	RespondWithJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.JobManager().GetStatus())
}
