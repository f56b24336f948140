// Package handler implements the HTTP endpoints of the portal API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/auth"
	"github.com/kiranshivaraju/automlpro/internal/email"
	"github.com/kiranshivaraju/automlpro/internal/jobs"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// JobService is the job client the job endpoints depend on. *jobs.Service
// implements it.
type JobService interface {
	CreateJob(ctx context.Context, p models.Principal, prompt string) (*models.Job, error)
	GetJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error)
	GetUserJobs(ctx context.Context, p models.Principal) ([]*models.Job, error)
	GetJobResult(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.JobResult, error)
	SubscribeToJob(ctx context.Context, p models.Principal, jobID uuid.UUID, onUpdate func(models.Job)) jobs.Unsubscribe
	SubscribeToUserJobs(ctx context.Context, p models.Principal, onUpdate func([]*models.Job)) jobs.Unsubscribe
}

// Accounts is the account service the auth endpoints depend on.
type Accounts interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, p models.Principal, tokenID uuid.UUID) error
	CurrentUser(ctx context.Context, p models.Principal) (*models.User, error)
}

// Mailer sends registration emails.
type Mailer interface {
	Send(ctx context.Context, data models.EmailTemplateData, kind email.Kind) email.Results
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
