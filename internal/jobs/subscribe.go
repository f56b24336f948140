package jobs

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/realtime"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

const jobsTable = "jobs"

// Unsubscribe stops a subscription. It is idempotent.
type Unsubscribe func()

func noopUnsubscribe() {}

// SubscribeToJob calls onUpdate with the full job after every update to
// jobID, one call at a time and in the order the changes were published.
// The subscription ends when the returned function is called or ctx is done.
// A subscription that cannot be opened is logged and yields a no-op.
func (s *Service) SubscribeToJob(ctx context.Context, p models.Principal, jobID uuid.UUID, onUpdate func(models.Job)) Unsubscribe {
	filter := realtime.Filter{Table: jobsTable, Event: realtime.EventUpdate, RowID: jobID.String()}
	return s.subscribe(ctx, p, filter, func(ctx context.Context, ev realtime.ChangeEvent) {
		job := s.jobFromEvent(ctx, p, jobID, ev)
		if job == nil {
			return
		}
		onUpdate(*job)
	})
}

// SubscribeToUserJobs re-reads p's job list after any change to one of p's
// jobs and passes the full list to onUpdate.
func (s *Service) SubscribeToUserJobs(ctx context.Context, p models.Principal, onUpdate func([]*models.Job)) Unsubscribe {
	filter := realtime.Filter{Table: jobsTable, Event: realtime.EventAll}
	return s.subscribe(ctx, p, filter, func(ctx context.Context, ev realtime.ChangeEvent) {
		if owner := eventOwner(ev); owner != uuid.Nil && owner != p.UserID {
			return
		}
		refreshCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
		defer cancel()
		jobs, err := s.GetUserJobs(refreshCtx, p)
		if err != nil {
			s.logger.Warn("job list refresh failed", "user_id", p.UserID, "error", err)
			return
		}
		onUpdate(jobs)
	})
}

func (s *Service) subscribe(ctx context.Context, p models.Principal, filter realtime.Filter, handle func(context.Context, realtime.ChangeEvent)) Unsubscribe {
	if !p.Authenticated() {
		s.logger.Warn("subscription refused for anonymous principal", "filter", filter.String())
		return noopUnsubscribe
	}
	if s.hub == nil {
		s.logger.Warn("subscription unavailable: no change feed configured", "filter", filter.String())
		return noopUnsubscribe
	}
	sub, err := s.hub.Subscribe(filter)
	if err != nil {
		s.logger.Warn("subscription failed", "filter", filter.String(), "error", err)
		return noopUnsubscribe
	}

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			sub.Close()
		})
	}

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				unsubscribe()
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				// Stop may have raced with the receive above.
				select {
				case <-stop:
					return
				default:
				}
				handle(ctx, ev)
			}
		}
	}()

	return unsubscribe
}

// jobFromEvent decodes the job carried by ev, re-reading it when the payload
// was truncated. It returns nil for events p must not see.
func (s *Service) jobFromEvent(ctx context.Context, p models.Principal, jobID uuid.UUID, ev realtime.ChangeEvent) *models.Job {
	if owner := eventOwner(ev); owner != uuid.Nil && owner != p.UserID {
		return nil
	}

	if !ev.Truncated {
		var job models.Job
		if err := json.Unmarshal(ev.Record, &job); err == nil && job.ID == jobID {
			if job.UserID != p.UserID {
				return nil
			}
			if job.Logs == nil {
				job.Logs = []string{}
			}
			return &job
		}
	}

	job, err := s.GetJob(ctx, p, jobID)
	if err != nil {
		s.logger.Warn("failed to re-read job after change", "job_id", jobID, "error", err)
		return nil
	}
	return job
}

// eventOwner returns the user_id of the changed row, or uuid.Nil when the
// payload does not carry one.
func eventOwner(ev realtime.ChangeEvent) uuid.UUID {
	for _, raw := range []json.RawMessage{ev.Record, ev.OldRecord} {
		if len(raw) == 0 {
			continue
		}
		var row struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &row); err == nil && row.UserID != uuid.Nil {
			return row.UserID
		}
	}
	return uuid.Nil
}
