package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/email"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

type registrationEmailResponse struct {
	Success bool          `json:"success"`
	Results email.Results `json:"results"`
}

// registrationUser accepts the portal's camelCase keys and their snake_case
// forms.
type registrationUser struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	PlanType      string `json:"planType"`
	PlanTypeSnake string `json:"plan_type"`
	Message       string `json:"message"`
}

func (u registrationUser) merge(other registrationUser) registrationUser {
	return registrationUser{
		Name:     firstNonEmpty(u.Name, other.Name),
		Email:    firstNonEmpty(u.Email, other.Email),
		PlanType: firstNonEmpty(u.PlanType, u.PlanTypeSnake, other.PlanType, other.PlanTypeSnake),
		Message:  firstNonEmpty(u.Message, other.Message),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type plainError struct {
	Error string `json:"error"`
}

// NewRegistrationEmailHandler returns an http.HandlerFunc for
// POST /api/v1/emails/registration. Responses keep the flat
// {success, results} / {error} shape the portal front end expects.
func NewRegistrationEmailHandler(m Mailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			response.Raw(w, http.StatusInternalServerError, plainError{"Failed to send email"})
			return
		}

		var req struct {
			UserData       registrationUser `json:"userData"`
			UserDataSnake  registrationUser `json:"user_data"`
			EmailType      string           `json:"emailType"`
			EmailTypeSnake string           `json:"email_type"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			response.Raw(w, http.StatusBadRequest, plainError{"Invalid JSON body"})
			return
		}

		u := req.UserData.merge(req.UserDataSnake)
		data := models.EmailTemplateData{
			Name:     strings.TrimSpace(u.Name),
			Email:    strings.TrimSpace(u.Email),
			PlanType: models.PlanType(u.PlanType).Normalize(),
			Message:  u.Message,
		}
		if data.Name == "" || data.Email == "" {
			response.Raw(w, http.StatusBadRequest, plainError{"Missing required user data (name, email)"})
			return
		}

		results := m.Send(r.Context(), data, email.ParseKind(firstNonEmpty(req.EmailType, req.EmailTypeSnake)))
		response.Raw(w, http.StatusOK, registrationEmailResponse{Success: true, Results: results})
	}
}
