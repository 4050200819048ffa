package blueprintsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Blueprint HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	UserID      string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Progress    int      `json:"progress"`
	Description string   `json:"description"`
	Stack       string   `json:"stack"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Task represents the API task model (partial).
type Task struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

// Message is one turn of an architect conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports model token consumption for a chat turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ChatResult is the architect's reply. Content may end with a machine
// readable actions block the dashboard can parse.
type ChatResult struct {
	Content string `json:"content"`
	TurnID  string `json:"turn_id"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Action is one executable plan step, sent back verbatim from the actions
// block for the server to apply.
type Action struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ApplyResult reports what an applied action created.
type ApplyResult struct {
	Project *Project `json:"project,omitempty"`
	Tasks   []Task   `json:"tasks,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Chat sends a conversation to the architect.
func (c *Client) Chat(ctx context.Context, messages []Message) (ChatResult, error) {
	body := map[string]any{"messages": messages}
	var resp ChatResult
	err := c.do(ctx, http.MethodPost, "v1/architect/chat", body, &resp)
	return resp, err
}

// ApplyAction executes one plan action extracted from a chat reply.
func (c *Client) ApplyAction(ctx context.Context, action Action) (ApplyResult, error) {
	var resp ApplyResult
	err := c.do(ctx, http.MethodPost, "v1/architect/actions", action, &resp)
	return resp, err
}

// Projects lists the caller's projects, newest first.
func (c *Client) Projects(ctx context.Context, limit int) ([]Project, error) {
	endpoint := "v1/projects"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// Tasks lists a project's tasks.
func (c *Client) Tasks(ctx context.Context, projectID int64) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	endpoint := fmt.Sprintf("v1/projects/%d/tasks", projectID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// Events returns recent events for the caller.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
