package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// PortalClient calls the AutoML Pro portal API.
type PortalClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewPortalClient creates a new client with the given base URL and token.
func NewPortalClient(baseURL, token string) *PortalClient {
	return &PortalClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Session is the sign-in response.
type Session struct {
	User      models.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// JobStats counts a user's jobs by status.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobList is one page of jobs plus the stats over all of them.
type JobList struct {
	Jobs  []models.Job
	Total int
	Stats JobStats
}

// SignIn sends POST /api/v1/auth/signin.
func (c *PortalClient) SignIn(email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(http.MethodPost, "/api/v1/auth/signin", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob sends POST /api/v1/jobs.
func (c *PortalClient) CreateJob(prompt string) (*models.Job, error) {
	var out models.Job
	if err := c.do(http.MethodPost, "/api/v1/jobs", map[string]string{"prompt": prompt}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs sends GET /api/v1/jobs with optional status and search filters.
func (c *PortalClient) ListJobs(status, search string, limit int) (*JobList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if search != "" {
		q.Set("q", search)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var (
		jobs []models.Job
		meta struct {
			Total int      `json:"total"`
			Stats JobStats `json:"stats"`
		}
	)
	if err := c.do(http.MethodGet, path, nil, &jobs, &meta); err != nil {
		return nil, err
	}
	return &JobList{Jobs: jobs, Total: meta.Total, Stats: meta.Stats}, nil
}

// GetJob sends GET /api/v1/jobs/{id}.
func (c *PortalClient) GetJob(jobID string) (*models.Job, error) {
	var out models.Job
	if err := c.do(http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJobResult sends GET /api/v1/jobs/{id}/result.
func (c *PortalClient) GetJobResult(jobID string) (*models.JobResult, error) {
	var out models.JobResult
	if err := c.do(http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID)+"/result", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request and decodes the {data, meta} envelope into data and meta.
func (c *PortalClient) do(method, path string, in, data, meta any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Add("Authorization", "Bearer "+c.Token)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	var env struct {
		Data json.RawMessage `json:"data"`
		Meta json.RawMessage `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	if meta != nil && len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, meta); err != nil {
			return fmt.Errorf("failed to parse response meta: %w", err)
		}
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return &APIError{StatusCode: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
