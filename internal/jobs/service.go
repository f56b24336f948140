// Package jobs is the application-side client of the job store: it creates
// training jobs, reads them back for their owner, and streams their changes.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/cache"
	"github.com/kiranshivaraju/automlpro/internal/realtime"
	"github.com/kiranshivaraju/automlpro/internal/store"
	"github.com/kiranshivaraju/automlpro/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrEmptyPrompt     = errors.New("prompt must not be empty")
	ErrPromptTooLong   = errors.New("prompt is too long")
	ErrJobNotFound     = errors.New("job not found")
	// ErrStore wraps every backend failure surfaced to callers.
	ErrStore = errors.New("job store error")
)

// MaxPromptLength is the longest accepted prompt, in characters.
const MaxPromptLength = 4000

const (
	defaultResultTTL      = time.Hour
	defaultRefreshTimeout = 10 * time.Second
)

// Subscriber opens filtered change subscriptions. *realtime.Hub implements it.
type Subscriber interface {
	Subscribe(filter realtime.Filter) (*realtime.Subscription, error)
}

// Service implements job operations on behalf of an authenticated principal.
type Service struct {
	store          store.Store
	cache          cache.Cache
	hub            Subscriber
	logger         *slog.Logger
	resultTTL      time.Duration
	refreshTimeout time.Duration
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithResultCacheTTL sets how long fetched results stay cached.
func WithResultCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resultTTL = ttl }
}

// WithRefreshTimeout bounds each list re-fetch triggered by a change event.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) { s.refreshTimeout = d }
}

// NewService creates a Service. The cache and hub may be nil: results are
// then always read from the store and subscriptions are no-ops.
func NewService(st store.Store, ca cache.Cache, hub Subscriber, opts ...Option) *Service {
	s := &Service{
		store:          st,
		cache:          ca,
		hub:            hub,
		logger:         slog.Default(),
		resultTTL:      defaultResultTTL,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob queues a new training request for p. The prompt is trimmed and
// must be non-empty. The returned job is the row as stored.
func (s *Service) CreateJob(ctx context.Context, p models.Principal, prompt string) (*models.Job, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return nil, ErrPromptTooLong
	}

	job := &models.Job{
		ID:       uuid.New(),
		UserID:   p.UserID,
		Prompt:   prompt,
		Status:   models.JobStatusPending,
		Progress: 0,
		Logs:     []string{models.InitialJobLog},
	}

	ctx, span := otel.Tracer("automlpro/jobs").Start(ctx, "create_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("user.id", p.UserID.String()),
		),
	)
	defer span.End()

	created, err := s.store.CreateJob(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store insert failed")
		return nil, fmt.Errorf("%w: create job: %w", ErrStore, err)
	}

	s.logger.Info("job created", "job_id", created.ID, "user_id", p.UserID)
	return created, nil
}

// GetJob returns the job, or nil when it does not exist or is not visible
// to p.
func (s *Service) GetJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	job, err := s.store.GetJob(ctx, jobID, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %w", ErrStore, err)
	}
	return job, nil
}

// GetUserJobs lists p's jobs, newest first. Backend failures are logged and
// reported as an empty list so dashboards keep rendering.
func (s *Service) GetUserJobs(ctx context.Context, p models.Principal) ([]*models.Job, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	jobs, err := s.store.ListJobsByUser(ctx, p.UserID)
	if err != nil {
		s.logger.Error("failed to list user jobs", "user_id", p.UserID, "error", err)
		return []*models.Job{}, nil
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return jobs, nil
}

// GetJobResult returns the trained-model summary for a job, or nil while the
// job has none. It fails with ErrJobNotFound when the job itself is not
// visible to p. Only results of completed jobs are cached; a job that has
// been re-queued drops its cached result.
func (s *Service) GetJobResult(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.JobResult, error) {
	job, err := s.GetJob(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	completed := job.Status == models.JobStatusCompleted
	if completed {
		if cached := s.cachedResult(ctx, jobID); cached != nil {
			return cached, nil
		}
	} else {
		s.evictResult(ctx, jobID)
	}

	result, err := s.store.GetJobResultByJobID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job result: %w", ErrStore, err)
	}

	if completed {
		s.cacheResult(ctx, result)
	}
	return result, nil
}

func (s *Service) cachedResult(ctx context.Context, jobID uuid.UUID) *models.JobResult {
	if s.cache == nil {
		return nil
	}
	raw, found, err := s.cache.Get(ctx, cache.JobResultKey(jobID))
	if err != nil {
		s.logger.Debug("job result cache read failed", "job_id", jobID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var r models.JobResult
	if err := json.Unmarshal(raw, &r); err != nil {
		s.evictResult(ctx, jobID)
		return nil
	}
	return &r
}

func (s *Service) evictResult(ctx context.Context, jobID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.JobResultKey(jobID)); err != nil {
		s.logger.Debug("job result cache evict failed", "job_id", jobID, "error", err)
	}
}

func (s *Service) cacheResult(ctx context.Context, r *models.JobResult) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.JobResultKey(r.JobID), raw, s.resultTTL); err != nil {
		s.logger.Debug("job result cache write failed", "job_id", r.JobID, "error", err)
	}
}
