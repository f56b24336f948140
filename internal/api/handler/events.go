package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/automlpro/internal/api/middleware"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

const streamBuffer = 16

// NewJobEventsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/events. It streams the current job followed by
// every update as server-sent "job" events.
func NewJobEventsHandler(svc JobService, heartbeat time.Duration) http.HandlerFunc {
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

		updates := make(chan any, streamBuffer)
		unsubscribe := svc.SubscribeToJob(r.Context(), p, jobID, func(j models.Job) {
			offer(updates, j, "job_id", jobID)
		})
		defer unsubscribe()

		stream(w, r, "job", job, updates, heartbeat)
	}
}

// NewJobListEventsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/events. It streams the user's full job list as "jobs"
// events whenever one of their jobs changes.
func NewJobListEventsHandler(svc JobService, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
			return
		}

		current, err := svc.GetUserJobs(r.Context(), p)
		if err != nil {
			writeJobError(w, err)
			return
		}

		updates := make(chan any, streamBuffer)
		unsubscribe := svc.SubscribeToUserJobs(r.Context(), p, func(list []*models.Job) {
			offer(updates, list, "user_id", p.UserID)
		})
		defer unsubscribe()

		stream(w, r, "jobs", current, updates, heartbeat)
	}
}

// offer queues v without blocking the subscription callback.
func offer(ch chan<- any, v any, attrKey string, attrVal any) {
	select {
	case ch <- v:
	default:
		slog.Warn("event stream client too slow, dropping update", attrKey, attrVal)
	}
}

func stream(w http.ResponseWriter, r *http.Request, event string, initial any, updates <-chan any, heartbeat time.Duration) {
	rc := http.NewResponseController(w)
	// streams outlive the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, event, initial); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Error("event stream cannot flush", "error", err)
		return
	}

	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case v := <-updates:
			if err := writeEvent(w, event, v); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
