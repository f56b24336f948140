// Package email sends transactional email through the Brevo HTTP API and
// renders the registration emails.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Sentinel errors for delivery failures.
var (
	ErrRateLimited         = errors.New("email provider rate limited")
	ErrProviderRejected    = errors.New("email provider rejected message")
	ErrProviderUnreachable = errors.New("email provider unreachable")
)

// RateLimitedUserMessage is shown to end users when retries are exhausted.
const RateLimitedUserMessage = "Email service is temporarily busy. Please try again in a few minutes."

const genericUserMessage = "We couldn't send the email. Please try again later."

const (
	DefaultAPIURL     = "https://api.brevo.com/v3/smtp/email"
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Message is one email to one recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendError describes a failed delivery. Err wraps one of the sentinel errors.
type SendError struct {
	StatusCode  int
	Message     string
	Attempts    int
	UserMessage string
	Err         error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send email: status %d after %d attempt(s): %v: %s", e.StatusCode, e.Attempts, e.Err, e.Message)
	}
	return fmt.Sprintf("send email after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// UserMessage returns text suitable for end users for any send error.
func UserMessage(err error) string {
	var se *SendError
	if errors.As(err, &se) && se.UserMessage != "" {
		return se.UserMessage
	}
	return genericUserMessage
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sender identity shown in the From header.
type Identity struct {
	Name  string
	Email string
}

// BrevoClient implements Sender against the Brevo transactional email API.
// Responses with status 429 are retried with exponential backoff; every
// other failure is returned immediately.
type BrevoClient struct {
	apiURL     string
	apiKey     string
	sender     Identity
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
	logger     *slog.Logger

	sent    metric.Int64Counter
	retries metric.Int64Counter
}

var _ Sender = (*BrevoClient)(nil)

type ClientOption func(*BrevoClient)

func WithAPIURL(u string) ClientOption {
	return func(c *BrevoClient) { c.apiURL = u }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *BrevoClient) { c.client = hc }
}

// WithRetry sets the retry budget for rate-limited sends. The wait before
// retry n (0-based) is base * 2^n.
func WithRetry(maxRetries int, base time.Duration) ClientOption {
	return func(c *BrevoClient) {
		c.maxRetries = maxRetries
		c.baseDelay = base
	}
}

// WithSleep replaces the waiting primitive used between retries.
func WithSleep(fn SleepFunc) ClientOption {
	return func(c *BrevoClient) { c.sleep = fn }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *BrevoClient) { c.logger = l }
}

// NewBrevoClient creates a client. timeout bounds each individual HTTP attempt.
func NewBrevoClient(apiKey string, sender Identity, timeout time.Duration, opts ...ClientOption) *BrevoClient {
	c := &BrevoClient{
		apiURL:     DefaultAPIURL,
		apiKey:     apiKey,
		sender:     sender,
		client:     &http.Client{Timeout: timeout},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepCtx,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("automlpro/email")
	var err error
	if c.sent, err = meter.Int64Counter("email.send.total",
		metric.WithDescription("Email send outcomes")); err != nil {
		c.logger.Warn("failed to register email metric", "metric", "email.send.total", "error", err)
	}
	if c.retries, err = meter.Int64Counter("email.send.retries",
		metric.WithDescription("Retries caused by provider rate limiting")); err != nil {
		c.logger.Warn("failed to register email metric", "metric", "email.send.retries", "error", err)
	}
	return c
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEnvelope struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

type brevoErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send delivers msg, retrying while the provider answers 429.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	ctx, span := otel.Tracer("automlpro/email").Start(ctx, "email.send",
		trace.WithAttributes(attribute.String("email.subject", msg.Subject)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	body, err := json.Marshal(brevoEnvelope{
		Sender:      brevoAddress{Email: c.sender.Email, Name: c.sender.Name},
		To:          []brevoAddress{{Email: msg.To, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	})
	if err != nil {
		return fmt.Errorf("encoding email: %w", err)
	}

	for attempt := 0; ; attempt++ {
		status, providerMsg, err := c.post(ctx, body)
		if err != nil {
			c.record(ctx, "unreachable")
			return &SendError{Attempts: attempt + 1, UserMessage: genericUserMessage, Err: classifyError(err)}
		}

		switch {
		case status >= 200 && status < 300:
			c.record(ctx, "sent")
			return nil

		case status == http.StatusTooManyRequests && attempt < c.maxRetries:
			delay := c.baseDelay << attempt
			c.logger.Warn("email provider rate limited, retrying",
				"to", msg.To, "attempt", attempt+1, "delay", delay)
			if c.retries != nil {
				c.retries.Add(ctx, 1)
			}
			if err := c.sleep(ctx, delay); err != nil {
				c.record(ctx, "rate_limited")
				return &SendError{
					StatusCode:  status,
					Message:     providerMsg,
					Attempts:    attempt + 1,
					UserMessage: RateLimitedUserMessage,
					Err:         errors.Join(ErrRateLimited, err),
				}
			}

		case status == http.StatusTooManyRequests:
			c.record(ctx, "rate_limited")
			return &SendError{
				StatusCode:  status,
				Message:     providerMsg,
				Attempts:    attempt + 1,
				UserMessage: RateLimitedUserMessage,
				Err:         ErrRateLimited,
			}

		default:
			c.record(ctx, "rejected")
			return &SendError{
				StatusCode:  status,
				Message:     providerMsg,
				Attempts:    attempt + 1,
				UserMessage: genericUserMessage,
				Err:         ErrProviderRejected,
			}
		}
	}
}

func (c *BrevoClient) post(ctx context.Context, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, "", nil
	}

	var errResp brevoErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Message != "" {
		return resp.StatusCode, errResp.Message, nil
	}
	if len(raw) > 0 {
		return resp.StatusCode, string(raw), nil
	}
	return resp.StatusCode, "Unknown error", nil
}

func (c *BrevoClient) record(ctx context.Context, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("email.outcome", outcome))
	if c.sent != nil {
		c.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrProviderUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
