package models

// EmailTemplateData is the registration payload rendered into welcome and
// admin notification emails.
type EmailTemplateData struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	PlanType PlanType `json:"plan_type"`
	Message  string   `json:"message,omitempty"`
}
