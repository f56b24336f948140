package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/automlpro/internal/api/middleware"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/jobs"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobListMeta is the metadata attached to a job list page. Stats cover all of
// the user's jobs, not only the filtered page.
type JobListMeta struct {
	response.PaginationMeta
	Stats jobs.Stats `json:"stats"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
			return
		}

		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := svc.CreateJob(r.Context(), p, req.Prompt)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
			return
		}

		q := r.URL.Query()
		status := models.JobStatus(q.Get("status"))
		if status != "" && !status.Valid() {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"status must be one of pending, running, completed, failed", nil)
			return
		}
		page, err := intParam(q.Get("page"), 1)
		if err != nil || page < 1 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "page must be a positive integer", nil)
			return
		}
		limit, err := intParam(q.Get("limit"), defaultPageLimit)
		if err != nil || limit < 1 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		all, err := svc.GetUserJobs(r.Context(), p)
		if err != nil {
			writeJobError(w, err)
			return
		}
		filtered := jobs.ApplyFilter(all, jobs.Filter{Status: status, Search: q.Get("q")})

		start := (page - 1) * limit
		if start > len(filtered) {
			start = len(filtered)
		}
		end := start + limit
		if end > len(filtered) {
			end = len(filtered)
		}

		response.Collection(w, filtered[start:end], JobListMeta{
			PaginationMeta: response.PaginationMeta{
				Page:    page,
				Limit:   limit,
				Total:   len(filtered),
				HasNext: end < len(filtered),
			},
			Stats: jobs.Summarize(all),
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, jobID, ok := jobRequest(w, r)
		if !ok {
			return
		}

		job, err := svc.GetJob(r.Context(), p, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if job == nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewGetJobResultHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/result.
func NewGetJobResultHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, jobID, ok := jobRequest(w, r)
		if !ok {
			return
		}

		result, err := svc.GetJobResult(r.Context(), p, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if result == nil {
			response.Error(w, http.StatusNotFound, "RESULT_NOT_READY",
				"The job has no result yet", nil)
			return
		}
		response.JSON(w, result)
	}
}

func jobRequest(w http.ResponseWriter, r *http.Request) (models.Principal, uuid.UUID, bool) {
	p, ok := mw.GetPrincipal(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
		return models.Principal{}, uuid.Nil, false
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "jobID must be a valid UUID", nil)
		return models.Principal{}, uuid.Nil, false
	}
	return p, jobID, true
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrEmptyPrompt):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt is required", nil)
	case errors.Is(err, jobs.ErrPromptTooLong):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"prompt must be at most "+strconv.Itoa(jobs.MaxPromptLength)+" characters", nil)
	case errors.Is(err, jobs.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication required", nil)
	case errors.Is(err, jobs.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrStore):
		slog.Error("job store failure", "error", err)
		response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
			"The job store is temporarily unavailable", nil)
	default:
		slog.Error("job request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
