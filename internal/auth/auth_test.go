package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/auth"
	"github.com/kiranshivaraju/automlpro/internal/email"
	"github.com/kiranshivaraju/automlpro/internal/store"
	"github.com/kiranshivaraju/automlpro/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	tokens   map[uuid.UUID]*models.AccessToken
	touched  chan uuid.UUID
	tokenErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:   make(map[uuid.UUID]*models.User),
		tokens:  make(map[uuid.UUID]*models.AccessToken),
		touched: make(chan uuid.UUID, 8),
	}
}

func (s *mockStore) Ping(context.Context) error { return nil }

func (s *mockStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicateKey
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *mockStore) GetUserByEmail(_ context.Context, addr string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, addr) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *mockStore) CreateAccessToken(_ context.Context, t *models.AccessToken) error {
	if s.tokenErr != nil {
		return s.tokenErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *mockStore) GetAccessTokensByPrefix(_ context.Context, prefix string) ([]*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AccessToken
	for _, t := range s.tokens {
		if t.TokenPrefix == prefix && t.RevokedAt == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAccessTokenLastUsed(_ context.Context, id uuid.UUID) error {
	s.touched <- id
	return nil
}

func (s *mockStore) RevokeAccessToken(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UserID != userID || t.RevokedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (s *mockStore) CreateJob(context.Context, *models.Job) (*models.Job, error) { return nil, nil }
func (s *mockStore) GetJob(context.Context, uuid.UUID, uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *mockStore) ListJobsByUser(context.Context, uuid.UUID) ([]*models.Job, error) { return nil, nil }
func (s *mockStore) GetJobResultByJobID(context.Context, uuid.UUID) (*models.JobResult, error) {
	return nil, store.ErrNotFound
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []models.EmailTemplateData
}

func (n *mockNotifier) SendBothEmails(_ context.Context, data models.EmailTemplateData) email.Results {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, data)
	return email.Results{Welcome: true, Admin: true}
}

func newTestService(st *mockStore, n auth.RegistrationNotifier, opts ...auth.Option) *auth.Service {
	opts = append([]auth.Option{auth.WithBcryptCost(bcrypt.MinCost)}, opts...)
	return auth.NewService(st, n, opts...)
}

func signUpInput() auth.SignUpInput {
	return auth.SignUpInput{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "correct horse",
		PlanType: models.PlanPro,
		Message:  "excited",
	}
}

// --- SignUp ---

func TestSignUp_CreatesUserAndToken(t *testing.T) {
	st := newMockStore()
	n := &mockNotifier{}
	svc := newTestService(st, n)

	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", sess.User.Name)
	assert.Equal(t, models.PlanPro, sess.User.PlanType)
	assert.True(t, strings.HasPrefix(sess.Token, auth.TokenPrefix))
	assert.Len(t, sess.Token, len(auth.TokenPrefix)+32)
	assert.NotEqual(t, "correct horse", sess.User.PasswordHash)

	tok := st.tokens[sess.TokenID]
	require.NotNil(t, tok)
	assert.Equal(t, sess.Token[:12], tok.TokenPrefix)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(tok.TokenHash), []byte(sess.Token)))

	svc.Wait()
	require.Len(t, n.sent, 1)
	assert.Equal(t, models.EmailTemplateData{
		Name: "Ada Lovelace", Email: "ada@example.com", PlanType: models.PlanPro, Message: "excited",
	}, n.sent[0])
}

func TestSignUp_UnknownPlanDefaultsToFree(t *testing.T) {
	svc := newTestService(newMockStore(), nil)

	in := signUpInput()
	in.PlanType = "gold"
	sess, err := svc.SignUp(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, sess.User.PlanType)
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*auth.SignUpInput)
		field string
	}{
		{"missing name", func(in *auth.SignUpInput) { in.Name = "  " }, "name"},
		{"bad email", func(in *auth.SignUpInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *auth.SignUpInput) { in.Password = "short" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockStore(), nil)
			in := signUpInput()
			tt.edit(&in)

			_, err := svc.SignUp(context.Background(), in)
			var ve *auth.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	st := newMockStore()
	n := &mockNotifier{}
	svc := newTestService(st, n)

	_, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	in := signUpInput()
	in.Email = "ADA@example.com"
	_, err = svc.SignUp(context.Background(), in)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	svc.Wait()
	assert.Len(t, n.sent, 1)
}

func TestSignUp_TokenStoreFailure(t *testing.T) {
	st := newMockStore()
	st.tokenErr = errors.New("db down")
	svc := newTestService(st, &mockNotifier{})

	_, err := svc.SignUp(context.Background(), signUpInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing token")
}

// --- SignIn ---

func TestSignIn(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, nil)
	_, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	sess, err := svc.SignIn(context.Background(), "Ada@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Len(t, st.tokens, 2)

	_, err = svc.SignIn(context.Background(), "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

// --- Authenticate ---

func TestAuthenticate(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, nil)
	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	p, tokenID, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, p.UserID)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, sess.TokenID, tokenID)

	select {
	case id := <-st.touched:
		assert.Equal(t, sess.TokenID, id)
	case <-time.After(time.Second):
		t.Fatal("last used timestamp not updated")
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, nil)
	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong prefix", "xyz_" + sess.Token[4:]},
		{"too short", "amp_1234"},
		{"wrong secret", sess.Token[:12] + strings.Repeat("0", len(sess.Token)-12)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	st := newMockStore()
	now := time.Now()
	clock := func() time.Time { return now }
	svc := newTestService(st, nil, auth.WithTokenTTL(time.Hour), auth.WithClock(clock))
	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, _, err = svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

// --- SignOut ---

func TestSignOut(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, nil)
	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	p, tokenID, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), p, tokenID))
	assert.ErrorIs(t, svc.SignOut(context.Background(), p, tokenID), auth.ErrTokenNotFound)

	_, _, err = svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	assert.ErrorIs(t, svc.SignOut(context.Background(), models.Principal{}, tokenID), auth.ErrInvalidToken)
}

func TestCurrentUser(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, nil)
	sess, err := svc.SignUp(context.Background(), signUpInput())
	require.NoError(t, err)

	u, err := svc.CurrentUser(context.Background(), models.Principal{UserID: sess.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.Name)

	_, err = svc.CurrentUser(context.Background(), models.Principal{UserID: uuid.New()})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
