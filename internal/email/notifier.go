package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/automlpro/pkg/models"
)

const (
	AdminRecipientName  = "AutoML Pro Admin"
	DefaultBetweenDelay = 2 * time.Second
)

// Kind selects which registration emails to send.
type Kind string

const (
	KindWelcome Kind = "welcome"
	KindAdmin   Kind = "admin"
	KindBoth    Kind = "both"
)

// ParseKind maps a request value to a Kind. Unknown and empty values mean both.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindWelcome:
		return KindWelcome
	case KindAdmin:
		return KindAdmin
	default:
		return KindBoth
	}
}

// Results reports which emails were delivered.
type Results struct {
	Welcome bool `json:"welcome"`
	Admin   bool `json:"admin"`
}

// Notifier sends the registration emails. Delivery failures are logged and
// reported as false, never returned as errors.
type Notifier struct {
	sender       Sender
	templates    *Templates
	adminEmail   string
	betweenDelay time.Duration
	sleep        SleepFunc
	now          func() time.Time
	logger       *slog.Logger
}

type NotifierOption func(*Notifier)

func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = l }
}

// WithBetweenDelay sets the pause between the welcome and admin emails.
func WithBetweenDelay(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.betweenDelay = d }
}

func WithNotifierSleep(fn SleepFunc) NotifierOption {
	return func(n *Notifier) { n.sleep = fn }
}

func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier creates a Notifier. An empty adminEmail disables admin alerts.
func NewNotifier(sender Sender, templates *Templates, adminEmail string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		sender:       sender,
		templates:    templates,
		adminEmail:   adminEmail,
		betweenDelay: DefaultBetweenDelay,
		sleep:        sleepCtx,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendWelcomeEmail sends the welcome email to the registering user.
func (n *Notifier) SendWelcomeEmail(ctx context.Context, data models.EmailTemplateData) bool {
	rendered, err := n.templates.Welcome(data)
	if err != nil {
		n.logger.Error("failed to render welcome email", "to", data.Email, "error", err)
		return false
	}
	return n.deliver(ctx, "welcome", Message{
		To:      data.Email,
		ToName:  data.Name,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
}

// SendAdminNotification alerts the administrator about a new registration.
func (n *Notifier) SendAdminNotification(ctx context.Context, data models.EmailTemplateData) bool {
	if n.adminEmail == "" {
		n.logger.Warn("admin email not configured, skipping admin notification", "user_email", data.Email)
		return false
	}
	rendered, err := n.templates.AdminAlert(data, n.now())
	if err != nil {
		n.logger.Error("failed to render admin email", "user_email", data.Email, "error", err)
		return false
	}
	return n.deliver(ctx, "admin", Message{
		To:      n.adminEmail,
		ToName:  AdminRecipientName,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
}

// SendBothEmails sends the welcome email and then the admin alert. The pause
// between them applies only when the welcome email went out. The admin alert
// is attempted regardless of the welcome outcome.
func (n *Notifier) SendBothEmails(ctx context.Context, data models.EmailTemplateData) Results {
	var res Results
	res.Welcome = n.SendWelcomeEmail(ctx, data)
	if res.Welcome && n.betweenDelay > 0 {
		if err := n.sleep(ctx, n.betweenDelay); err != nil {
			n.logger.Warn("pause between registration emails interrupted", "error", err)
		}
	}
	res.Admin = n.SendAdminNotification(ctx, data)
	return res
}

// Send dispatches on kind.
func (n *Notifier) Send(ctx context.Context, data models.EmailTemplateData, kind Kind) Results {
	switch kind {
	case KindWelcome:
		return Results{Welcome: n.SendWelcomeEmail(ctx, data)}
	case KindAdmin:
		return Results{Admin: n.SendAdminNotification(ctx, data)}
	default:
		return n.SendBothEmails(ctx, data)
	}
}

func (n *Notifier) deliver(ctx context.Context, kind string, msg Message) bool {
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error(fmt.Sprintf("failed to send %s email", kind),
			"to", msg.To, "error", err, "user_message", UserMessage(err))
		return false
	}
	n.logger.Info("email sent", "kind", kind, "to", msg.To)
	return true
}
