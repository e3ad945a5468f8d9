package suratlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Suratline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Report represents the API report model (partial).
type Report struct {
	ID                   string            `json:"id"`
	LetterNumber         string            `json:"letter_number"`
	Subject              string            `json:"subject"`
	ServiceType          string            `json:"service_type"`
	Status               string            `json:"status"`
	Progress             int               `json:"progress"`
	CreatedBy            string            `json:"created_by"`
	AssignedCoordinators []string          `json:"assigned_coordinators"`
	AssignedStaff        []string          `json:"assigned_staff"`
	Verification         map[string]string `json:"document_verification,omitempty"`
	Tasks                []Task            `json:"tasks"`
	Notes                string            `json:"notes,omitempty"`
	RevisionNotes        string            `json:"revision_notes,omitempty"`
	History              []HistoryEntry    `json:"history"`
	CreatedAt            string            `json:"created_at"`
	UpdatedAt            string            `json:"updated_at"`
}

type Task struct {
	ID          string   `json:"id"`
	StaffID     string   `json:"staff_id"`
	Items       []string `json:"items"`
	Completed   bool     `json:"completed"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// HistoryEntry is one line of a report's history.
type HistoryEntry struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	ReportID  string `json:"report_id"`
	Type      string `json:"type"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Notes     string `json:"notes,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Tracking is the public view of a letter.
type Tracking struct {
	ID           string `json:"id"`
	LetterNumber string `json:"letter_number"`
	Subject      string `json:"subject"`
	ServiceType  string `json:"service_type"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Timeline     []struct {
		Action    string `json:"action"`
		Timestamp string `json:"timestamp"`
	} `json:"timeline"`
}

// NewReport is the intake form.
type NewReport struct {
	LetterNumber string         `json:"letter_number"`
	Subject      string         `json:"subject"`
	ServiceType  string         `json:"service_type"`
	Disposition  map[string]any `json:"disposition,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

// Assignment confirms documents and splits work among staff.
type Assignment struct {
	Verification map[string]string `json:"document_verification,omitempty"`
	Staff        []string          `json:"staff"`
	Items        []string          `json:"items"`
	Notes        string            `json:"notes,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// PaginatedHistory wraps the ledger feed with a cursor.
type PaginatedHistory struct {
	Items      []HistoryEntry `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, userID, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"id": userID, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateReport registers a letter.
func (c *Client) CreateReport(ctx context.Context, in NewReport) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", in, &resp)
	return resp, err
}

// Reports lists the reports visible to the logged-in user.
func (c *Client) Reports(ctx context.Context, status string) ([]Report, error) {
	endpoint := "reports?limit=200"
	if status != "" {
		endpoint += "&status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Report `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Report fetches one report.
func (c *Client) Report(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, reportPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) Forward(ctx context.Context, id string, coordinators []string) (Report, error) {
	return c.action(ctx, id, "forward", map[string]any{"coordinators": coordinators})
}

func (c *Client) Assign(ctx context.Context, id string, a Assignment) (Report, error) {
	return c.action(ctx, id, "assign", a)
}

func (c *Client) CompleteTask(ctx context.Context, id string) (Report, error) {
	return c.action(ctx, id, "complete", nil)
}

func (c *Client) Approve(ctx context.Context, id string) (Report, error) {
	return c.action(ctx, id, "approve", nil)
}

func (c *Client) Revise(ctx context.Context, id, note string) (Report, error) {
	return c.action(ctx, id, "revise", map[string]any{"note": note})
}

func (c *Client) ReturnToTU(ctx context.Context, id, note string) (Report, error) {
	return c.action(ctx, id, "return", map[string]any{"note": note})
}

func (c *Client) HandBack(ctx context.Context, id string) (Report, error) {
	return c.action(ctx, id, "handback", nil)
}

// AddNote appends a free-form history entry.
func (c *Client) AddNote(ctx context.Context, id, action, notes string) (HistoryEntry, error) {
	var resp HistoryEntry
	body := map[string]any{"action": action, "notes": notes}
	err := c.do(ctx, http.MethodPost, reportPath(id, "history"), body, &resp)
	return resp, err
}

// Track looks a letter up by number fragment without logging in.
func (c *Client) Track(ctx context.Context, query string) (Tracking, error) {
	var resp Tracking
	err := c.do(ctx, http.MethodGet, "track?q="+url.QueryEscape(query), nil, &resp)
	return resp, err
}

// HistoryPage returns the ledger feed after cursor. Admin only.
func (c *Client) HistoryPage(ctx context.Context, limit int, cursor string) (PaginatedHistory, error) {
	endpoint := "history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedHistory
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) action(ctx context.Context, id, action string, body any) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, reportPath(id, action), body, &resp)
	return resp, err
}

func reportPath(id, sub string) string {
	p := "reports/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
