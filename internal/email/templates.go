package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/kiranshivaraju/automlpro/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml templates/*.tmpl
var assets embed.FS

const registrationTimeLayout = "Jan 2, 2006 3:04 PM MST"

// Plan is the marketing copy for one subscription tier.
type Plan struct {
	Title         string   `yaml:"title"`
	Emoji         string   `yaml:"emoji"`
	Pricing       string   `yaml:"pricing"`
	OriginalPrice string   `yaml:"original_price"`
	Badge         string   `yaml:"badge"`
	Features      []string `yaml:"features"`
	NextSteps     string   `yaml:"next_steps"`
	CTAText       string   `yaml:"cta_text"`
	CTAPath       string   `yaml:"cta_path"`
	AdminHeading  string   `yaml:"admin_heading"`
	AdminNotes    []string `yaml:"admin_notes"`
	AdminActions  []string `yaml:"admin_actions"`
}

// Rendered is a fully rendered email body pair.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Templates renders the registration emails.
type Templates struct {
	siteURL string
	plans   map[models.PlanType]Plan

	welcomeHTML *htmltemplate.Template
	adminHTML   *htmltemplate.Template
	welcomeText *texttemplate.Template
	adminText   *texttemplate.Template
}

type welcomeView struct {
	Name   string
	Tier   models.PlanType
	Plan   Plan
	CTAURL string
}

type adminView struct {
	Name         string
	Email        string
	Message      string
	Tier         models.PlanType
	Plan         Plan
	RegisteredAt string
	DashboardURL string
}

// NewTemplates parses the embedded templates and plan catalog. Links in the
// rendered emails are rooted at siteURL.
func NewTemplates(siteURL string) (*Templates, error) {
	raw, err := assets.ReadFile("plans.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading plan catalog: %w", err)
	}
	plans := make(map[models.PlanType]Plan)
	if err := yaml.Unmarshal(raw, &plans); err != nil {
		return nil, fmt.Errorf("parsing plan catalog: %w", err)
	}
	for _, tier := range []models.PlanType{models.PlanFree, models.PlanPro, models.PlanEnterprise} {
		if _, ok := plans[tier]; !ok {
			return nil, fmt.Errorf("plan catalog is missing tier %q", tier)
		}
	}

	funcs := htmltemplate.FuncMap{"upper": strings.ToUpper}
	t := &Templates{siteURL: strings.TrimRight(siteURL, "/"), plans: plans}

	if t.welcomeHTML, err = htmltemplate.New("welcome").Funcs(funcs).
		ParseFS(assets, "templates/layout.html.tmpl", "templates/welcome.html.tmpl"); err != nil {
		return nil, fmt.Errorf("parsing welcome template: %w", err)
	}
	if t.adminHTML, err = htmltemplate.New("admin").Funcs(funcs).
		ParseFS(assets, "templates/layout.html.tmpl", "templates/admin.html.tmpl"); err != nil {
		return nil, fmt.Errorf("parsing admin template: %w", err)
	}
	if t.welcomeText, err = texttemplate.ParseFS(assets, "templates/welcome.txt.tmpl"); err != nil {
		return nil, fmt.Errorf("parsing welcome text template: %w", err)
	}
	if t.adminText, err = texttemplate.ParseFS(assets, "templates/admin.txt.tmpl"); err != nil {
		return nil, fmt.Errorf("parsing admin text template: %w", err)
	}
	return t, nil
}

// Plan returns the catalog entry for tier, falling back to the free tier.
func (t *Templates) Plan(tier models.PlanType) Plan {
	return t.plans[tier.Normalize()]
}

// Welcome renders the email sent to a newly registered user.
func (t *Templates) Welcome(data models.EmailTemplateData) (Rendered, error) {
	tier := data.PlanType.Normalize()
	plan := t.plans[tier]
	view := welcomeView{
		Name:   data.Name,
		Tier:   tier,
		Plan:   plan,
		CTAURL: t.siteURL + plan.CTAPath,
	}

	out, err := t.render(t.welcomeHTML, t.welcomeText, "welcome.txt.tmpl", view)
	if err != nil {
		return Rendered{}, fmt.Errorf("rendering welcome email: %w", err)
	}
	out.Subject = fmt.Sprintf("🎉 Welcome to AutoML Pro - Your %s is Ready!", plan.Title)
	return out, nil
}

// AdminAlert renders the notification sent to the site administrator.
func (t *Templates) AdminAlert(data models.EmailTemplateData, at time.Time) (Rendered, error) {
	tier := data.PlanType.Normalize()
	plan := t.plans[tier]
	view := adminView{
		Name:         data.Name,
		Email:        data.Email,
		Message:      strings.TrimSpace(data.Message),
		Tier:         tier,
		Plan:         plan,
		RegisteredAt: at.UTC().Format(registrationTimeLayout),
		DashboardURL: t.siteURL + "/admin",
	}

	out, err := t.render(t.adminHTML, t.adminText, "admin.txt.tmpl", view)
	if err != nil {
		return Rendered{}, fmt.Errorf("rendering admin email: %w", err)
	}
	out.Subject = fmt.Sprintf("🚨 NEW USER ALERT: %s registered for %s", data.Name, plan.Title)
	return out, nil
}

func (t *Templates) render(h *htmltemplate.Template, txt *texttemplate.Template, textName string, view any) (Rendered, error) {
	var hb, tb bytes.Buffer
	if err := h.ExecuteTemplate(&hb, "layout", view); err != nil {
		return Rendered{}, err
	}
	if err := txt.ExecuteTemplate(&tb, textName, view); err != nil {
		return Rendered{}, err
	}
	return Rendered{HTML: hb.String(), Text: strings.TrimSpace(tb.String())}, nil
}
