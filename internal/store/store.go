package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Job rows are only ever inserted here; the training worker owns every later write.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateAccessToken(ctx context.Context, token *models.AccessToken) error
	GetAccessTokensByPrefix(ctx context.Context, prefix string) ([]*models.AccessToken, error)
	UpdateAccessTokenLastUsed(ctx context.Context, id uuid.UUID) error
	RevokeAccessToken(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)

	GetJobResultByJobID(ctx context.Context, jobID uuid.UUID) (*models.JobResult, error)
}
