// Package taskapi is a minimal client for the upstream task API. It drains
// cursor-paginated task listings and deliberately fails soft: a transport or
// decode failure on a page ends that listing with whatever was already
// accumulated, so callers always get a (possibly truncated) sequence.
package taskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// optFields is the exact projection requested on every task listing.
const optFields = "gid,completed,completed_at"

// epochSince is the lower bound passed on project listings so that both
// completed and incomplete tasks are returned.
const epochSince = "1970-01-01T00:00:00Z"

// Client is a minimal task API client.
type Client struct {
	BaseURL    string
	Token      string
	PageLimit  int
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *log.Logger
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:   baseURL,
		Token:     token,
		PageLimit: 100,
		Timeout:   10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	GID         string  `json:"gid"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at"`
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Data     []Task    `json:"data"`
	NextPage *NextPage `json:"next_page"`
}

// NextPage carries the opaque follow-up URL of a cursor-paginated listing.
type NextPage struct {
	URI string `json:"uri"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ProjectTasks returns every top-level task of a project, across all pages.
func (c *Client) ProjectTasks(ctx context.Context, projectID string) []Task {
	q := url.Values{}
	q.Set("project", projectID)
	q.Set("completed_since", epochSince)
	return c.fetchAll(ctx, "tasks?"+c.withListParams(q).Encode())
}

// Subtasks returns the direct subtasks of a task, across all pages.
func (c *Client) Subtasks(ctx context.Context, taskID string) []Task {
	endpoint := fmt.Sprintf("tasks/%s/subtasks", url.PathEscape(taskID))
	return c.fetchAll(ctx, endpoint+"?"+c.withListParams(url.Values{}).Encode())
}

func (c *Client) withListParams(q url.Values) url.Values {
	q.Set("opt_fields", optFields)
	limit := c.PageLimit
	if limit <= 0 {
		limit = 100
	}
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// fetchAll follows next_page.uri until the listing is exhausted. Any failure
// ends pagination for this call; pages gathered so far are kept.
func (c *Client) fetchAll(ctx context.Context, endpoint string) []Task {
	next := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var all []Task
	for next != "" {
		var page TaskPage
		if err := c.get(ctx, next, &page); err != nil {
			c.logger().Printf("WARNING: task listing truncated after %d records: %v", len(all), err)
			return all
		}
		all = append(all, page.Data...)
		next = ""
		if page.NextPage != nil {
			next = page.NextPage.URI
		}
	}
	return all
}

func (c *Client) get(ctx context.Context, rawurl string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
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
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
