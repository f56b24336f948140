package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

const userColumns = `id, email, name, password_hash, plan_type, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.PlanType, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, plan_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.PlanType, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// --- Access Tokens ---

func (s *PostgresStore) CreateAccessToken(ctx context.Context, token *models.AccessToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_tokens (id, user_id, name, token_hash, token_prefix, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.UserID, token.Name, token.TokenHash, token.TokenPrefix, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccessTokensByPrefix(ctx context.Context, prefix string) ([]*models.AccessToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at, revoked_at, created_at
		 FROM access_tokens WHERE token_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get access tokens by prefix: %w", err)
	}
	defer rows.Close()

	var tokens []*models.AccessToken
	for rows.Next() {
		var t models.AccessToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.TokenPrefix,
			&t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan access token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) UpdateAccessTokenLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE access_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update access token last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE access_tokens SET revoked_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, user_id, prompt, status, progress, logs, error_message, result_summary, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	if err := row.Scan(&j.ID, &j.UserID, &j.Prompt, &j.Status, &j.Progress, &j.Logs,
		&j.ErrorMessage, &j.ResultSummary, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if j.Logs == nil {
		j.Logs = []string{}
	}
	return &j, nil
}

// CreateJob inserts the job and returns the row as stored, including
// server-assigned timestamps.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	created, err := scanJob(s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, user_id, prompt, status, progress, logs)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+jobColumns,
		job.ID, job.UserID, job.Prompt, job.Status, job.Progress, job.Logs))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// --- Job Results ---

func (s *PostgresStore) GetJobResultByJobID(ctx context.Context, jobID uuid.UUID) (*models.JobResult, error) {
	var r models.JobResult
	var metrics, importance, predictions []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, model_type, accuracy, loss, training_time, dataset_size, features_used,
		        model_size, download_url, api_endpoint, metrics, feature_importance, predictions_sample, created_at
		 FROM job_results WHERE job_id = $1`, jobID,
	).Scan(&r.ID, &r.JobID, &r.ModelType, &r.Accuracy, &r.Loss, &r.TrainingTime, &r.DatasetSize,
		&r.FeaturesUsed, &r.ModelSize, &r.DownloadURL, &r.APIEndpoint, &metrics, &importance,
		&predictions, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}

	if err := unmarshalJSONB(metrics, &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode job result metrics: %w", err)
	}
	if err := unmarshalJSONB(importance, &r.FeatureImportance); err != nil {
		return nil, fmt.Errorf("decode job result feature importance: %w", err)
	}
	if err := unmarshalJSONB(predictions, &r.PredictionsSample); err != nil {
		return nil, fmt.Errorf("decode job result predictions: %w", err)
	}
	return &r, nil
}

// unmarshalJSONB leaves dst untouched for SQL NULL.
func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
