package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/automlpro/internal/api/middleware"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/auth"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

type sessionResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
}

func newSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		User:      s.User,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// NewSignUpHandler returns an http.HandlerFunc for POST /api/v1/auth/signup.
func NewSignUpHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
			PlanType string `json:"plan_type"`
			Message  string `json:"message"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		sess, err := svc.SignUp(r.Context(), auth.SignUpInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			PlanType: models.PlanType(req.PlanType),
			Message:  req.Message,
		})
		if err != nil {
			var ve *auth.ValidationError
			switch {
			case errors.As(err, &ve):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid sign-up request",
					map[string]string{ve.Field: ve.Message})
			case errors.Is(err, auth.ErrEmailTaken):
				response.Error(w, http.StatusConflict, "EMAIL_TAKEN",
					"An account with this email already exists", nil)
			default:
				slog.Error("sign-up failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, newSessionResponse(sess))
	}
}

// NewSignInHandler returns an http.HandlerFunc for POST /api/v1/auth/signin.
func NewSignInHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Email == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required", nil)
			return
		}

		sess, err := svc.SignIn(r.Context(), req.Email, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
			return
		}
		if err != nil {
			slog.Error("sign-in failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, newSessionResponse(sess))
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/auth/me.
func NewMeHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
			return
		}

		user, err := svc.CurrentUser(r.Context(), p)
		if errors.Is(err, auth.ErrInvalidToken) {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Account no longer exists", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, user)
	}
}

// NewSignOutHandler returns an http.HandlerFunc for POST /api/v1/auth/signout.
func NewSignOutHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		tokenID, hasToken := mw.GetTokenID(r)
		if !ok || !hasToken {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing principal", nil)
			return
		}

		err := svc.SignOut(r.Context(), p, tokenID)
		if err != nil && !errors.Is(err, auth.ErrTokenNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.NoContent(w)
	}
}
