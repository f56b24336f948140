// Package auth manages portal accounts and the opaque bearer tokens that
// identify a signed-in user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/email"
	"github.com/kiranshivaraju/automlpro/internal/store"
	"github.com/kiranshivaraju/automlpro/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenNotFound      = errors.New("token not found")
)

// ValidationError reports a rejected sign-up field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	// TokenPrefix starts every raw access token.
	TokenPrefix       = "amp_"
	tokenLookupLen    = 12
	MinPasswordLength = 8
	DefaultTokenTTL   = 24 * time.Hour
	emailSendTimeout  = 2 * time.Minute
)

// RegistrationNotifier sends the emails that follow a successful sign-up.
type RegistrationNotifier interface {
	SendBothEmails(ctx context.Context, data models.EmailTemplateData) email.Results
}

// SignUpInput is a new account request.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	PlanType models.PlanType
	Message  string
}

// Session is the outcome of SignUp or SignIn. Token is the only copy of the
// raw bearer token.
type Session struct {
	User      *models.User
	Token     string
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// Service implements account operations.
type Service struct {
	store      store.Store
	notifier   RegistrationNotifier
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithBcryptCost overrides the hashing cost for passwords and tokens.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the account service. notifier may be nil, in which case
// no registration emails are sent.
func NewService(st store.Store, notifier RegistrationNotifier, opts ...Option) *Service {
	s := &Service{
		store:      st,
		notifier:   notifier,
		tokenTTL:   DefaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates an account, issues a token and queues the registration
// emails in the background.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	addr := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return nil, &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if len(in.Password) < MinPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        addr,
		Name:         name,
		PasswordHash: string(hash),
		PlanType:     in.PlanType.Normalize(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	sess, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "plan_type", user.PlanType)
	s.sendRegistrationEmails(ctx, models.EmailTemplateData{
		Name:     user.Name,
		Email:    user.Email,
		PlanType: user.PlanType,
		Message:  strings.TrimSpace(in.Message),
	})
	return sess, nil
}

// SignIn verifies credentials and issues a new token.
func (s *Service) SignIn(ctx context.Context, addr, password string) (*Session, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(addr))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(ctx, user)
}

// SignOut revokes the token the principal is using.
func (s *Service) SignOut(ctx context.Context, p models.Principal, tokenID uuid.UUID) error {
	if !p.Authenticated() {
		return ErrInvalidToken
	}
	err := s.store.RevokeAccessToken(ctx, tokenID, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// Authenticate resolves a raw bearer token to the principal it belongs to and
// the id of the matching token row.
func (s *Service) Authenticate(ctx context.Context, raw string) (models.Principal, uuid.UUID, error) {
	if !strings.HasPrefix(raw, TokenPrefix) || len(raw) < tokenLookupLen {
		return models.Principal{}, uuid.Nil, ErrInvalidToken
	}

	tokens, err := s.store.GetAccessTokensByPrefix(ctx, raw[:tokenLookupLen])
	if err != nil {
		return models.Principal{}, uuid.Nil, fmt.Errorf("looking up token: %w", err)
	}

	now := s.now()
	for _, tok := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(tok.TokenHash), []byte(raw)) != nil {
			continue
		}
		if !tok.Usable(now) {
			return models.Principal{}, uuid.Nil, ErrInvalidToken
		}

		user, err := s.store.GetUserByID(ctx, tok.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Principal{}, uuid.Nil, ErrInvalidToken
		}
		if err != nil {
			return models.Principal{}, uuid.Nil, fmt.Errorf("looking up token owner: %w", err)
		}

		id := tok.ID
		go func() {
			if err := s.store.UpdateAccessTokenLastUsed(context.Background(), id); err != nil {
				s.logger.Warn("failed to update token last used", "token_id", id, "error", err)
			}
		}()
		return models.Principal{UserID: user.ID, Email: user.Email}, tok.ID, nil
	}
	return models.Principal{}, uuid.Nil, ErrInvalidToken
}

// CurrentUser loads the account behind p.
func (s *Service) CurrentUser(ctx context.Context, p models.Principal) (*models.User, error) {
	if !p.Authenticated() {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

// Wait blocks until background registration emails have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) issueToken(ctx context.Context, user *models.User) (*Session, error) {
	raw, err := generateToken()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing token: %w", err)
	}

	now := s.now().UTC()
	tok := &models.AccessToken{
		ID:          uuid.New(),
		UserID:      user.ID,
		Name:        "session",
		TokenHash:   string(hash),
		TokenPrefix: raw[:tokenLookupLen],
		ExpiresAt:   now.Add(s.tokenTTL),
		CreatedAt:   now,
	}
	if err := s.store.CreateAccessToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	return &Session{User: user, Token: raw, TokenID: tok.ID, ExpiresAt: tok.ExpiresAt}, nil
}

func (s *Service) sendRegistrationEmails(ctx context.Context, data models.EmailTemplateData) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailSendTimeout)
		defer cancel()

		res := s.notifier.SendBothEmails(ctx, data)
		s.logger.Info("registration emails processed",
			"email", data.Email, "welcome", res.Welcome, "admin", res.Admin)
	}()
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}
