package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/automlpro/internal/store"
	"github.com/kiranshivaraju/automlpro/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("automlpro_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))
	// Second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func createUser(t *testing.T, s store.Store, email string) *models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: "bcrypt-hash",
		PlanType:     models.PlanPro,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newJob(userID uuid.UUID, prompt string) *models.Job {
	return &models.Job{
		ID:       uuid.New(),
		UserID:   userID,
		Prompt:   prompt,
		Status:   models.JobStatusPending,
		Progress: 0,
		Logs:     []string{models.InitialJobLog},
	}
}

// --- User Tests ---

func TestUser_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	u := createUser(t, s, "Ada@Example.com")

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, models.PlanPro, byEmail.PlanType)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada@Example.com", byID.Email)
}

func TestUser_DuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	createUser(t, s, "dup@example.com")

	now := time.Now().UTC()
	err := s.CreateUser(context.Background(), &models.User{
		ID: uuid.New(), Email: "DUP@example.com", Name: "x", PasswordHash: "h",
		PlanType: models.PlanFree, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestUser_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetUserByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Access Token Tests ---

func TestAccessToken_CreateLookupRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "tokens@example.com")

	now := time.Now().UTC().Truncate(time.Microsecond)
	tok := &models.AccessToken{
		ID:          uuid.New(),
		UserID:      u.ID,
		Name:        "signin",
		TokenHash:   "bcrypt-hash",
		TokenPrefix: "amp_abcdef12",
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
	}
	require.NoError(t, s.CreateAccessToken(ctx, tok))

	tokens, err := s.GetAccessTokensByPrefix(ctx, "amp_abcdef12")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, tok.ID, tokens[0].ID)
	assert.Nil(t, tokens[0].LastUsedAt)

	require.NoError(t, s.UpdateAccessTokenLastUsed(ctx, tok.ID))
	tokens, err = s.GetAccessTokensByPrefix(ctx, "amp_abcdef12")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotNil(t, tokens[0].LastUsedAt)

	// Another user cannot revoke it.
	assert.ErrorIs(t, s.RevokeAccessToken(ctx, tok.ID, uuid.New()), store.ErrNotFound)

	require.NoError(t, s.RevokeAccessToken(ctx, tok.ID, u.ID))
	tokens, err = s.GetAccessTokensByPrefix(ctx, "amp_abcdef12")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	assert.ErrorIs(t, s.RevokeAccessToken(ctx, tok.ID, u.ID), store.ErrNotFound)
}

// --- Job Tests ---

func TestJob_CreateReturnsStoredRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "jobs@example.com")

	job := newJob(u.ID, "Predict churn from customer data")
	created, err := s.CreateJob(ctx, job)
	require.NoError(t, err)

	assert.Equal(t, job.ID, created.ID)
	assert.Equal(t, u.ID, created.UserID)
	assert.Equal(t, models.JobStatusPending, created.Status)
	assert.Equal(t, 0, created.Progress)
	assert.Equal(t, []string{models.InitialJobLog}, created.Logs)
	assert.Nil(t, created.ErrorMessage)
	assert.Nil(t, created.ResultSummary)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
}

func TestJob_GetScopedToOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	owner := createUser(t, s, "owner@example.com")
	other := createUser(t, s, "other@example.com")

	created, err := s.CreateJob(ctx, newJob(owner.ID, "Classify images"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Classify images", got.Prompt)

	_, err = s.GetJob(ctx, created.ID, other.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetJob(ctx, uuid.New(), owner.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ListNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "list@example.com")
	other := createUser(t, s, "list-other@example.com")

	var ids []uuid.UUID
	for _, p := range []string{"first", "second", "third"} {
		j, err := s.CreateJob(ctx, newJob(u.ID, p))
		require.NoError(t, err)
		ids = append(ids, j.ID)
		time.Sleep(5 * time.Millisecond)
	}
	_, err := s.CreateJob(ctx, newJob(other.ID, "not mine"))
	require.NoError(t, err)

	jobs, err := s.ListJobsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
	assert.Equal(t, ids[0], jobs[2].ID)

	empty, err := s.ListJobsByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestJob_UpdateTouchesUpdatedAt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "touch@example.com")

	created, err := s.CreateJob(ctx, newJob(u.ID, "Forecast sales"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = pool.Exec(ctx, `UPDATE jobs SET status = 'running', progress = 10 WHERE id = $1`, created.ID)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, created.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 10, got.Progress)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
}

// --- Job Result Tests ---

func TestJobResult_GetByJobID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "results@example.com")

	job, err := s.CreateJob(ctx, newJob(u.ID, "Detect fraud"))
	require.NoError(t, err)

	_, err = s.GetJobResultByJobID(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = pool.Exec(ctx,
		`INSERT INTO job_results (job_id, model_type, accuracy, loss, training_time, dataset_size,
		                          features_used, model_size, download_url, metrics, feature_importance)
		 VALUES ($1, 'XGBoost', 0.94, 0.12, 42.5, 10000, $2, '12MB', 'https://example.com/model.pkl',
		         '{"precision":0.93,"recall":0.91,"f1_score":0.92,"confusion_matrix":[[90,10],[5,95]]}',
		         '[{"feature":"amount","importance":0.6}]')`,
		job.ID, []string{"amount", "merchant"})
	require.NoError(t, err)

	r, err := s.GetJobResultByJobID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, r.JobID)
	assert.Equal(t, "XGBoost", r.ModelType)
	assert.InDelta(t, 0.94, r.Accuracy, 1e-9)
	assert.Equal(t, 10000, r.DatasetSize)
	assert.Equal(t, []string{"amount", "merchant"}, r.FeaturesUsed)
	require.NotNil(t, r.DownloadURL)
	assert.Equal(t, "https://example.com/model.pkl", *r.DownloadURL)
	assert.Nil(t, r.APIEndpoint)
	assert.InDelta(t, 0.92, r.Metrics.F1Score, 1e-9)
	assert.Equal(t, [][]int{{90, 10}, {5, 95}}, r.Metrics.ConfusionMatrix)
	require.Len(t, r.FeatureImportance, 1)
	assert.Equal(t, "amount", r.FeatureImportance[0].Feature)
	assert.Nil(t, r.PredictionsSample)
}

// --- Change Notification Tests ---

func TestJob_ChangesArePublished(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "notify@example.com")

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	_, err = conn.Exec(ctx, "LISTEN job_changes")
	require.NoError(t, err)

	job, err := s.CreateJob(ctx, newJob(u.ID, "Cluster customers"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := conn.Conn().WaitForNotification(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "job_changes", n.Channel)
	assert.Contains(t, n.Payload, `"type": "INSERT"`)
	assert.Contains(t, n.Payload, job.ID.String())
}
