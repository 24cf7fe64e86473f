// Package publisher pushes finished artifacts to a WordPress site over its
// REST API. Term creation and Markdown rendering happen on the WordPress side.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when any WordPress credential is missing.
var ErrNotConfigured = errors.New("WordPress API credentials are not fully configured")

// RemoteError is a non-2xx response from WordPress.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("wordpress: HTTP %d: %s", e.StatusCode, e.Message)
}

// Post is the payload accepted by the brief and posts endpoints.
type Post struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Excerpt    string         `json:"excerpt,omitempty"`
	Status     string         `json:"status"`
	Keywords   []string       `json:"keywords,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Fields     map[string]any `json:"acf,omitempty"`
}

// Published is what WordPress reports back for a created post.
type Published struct {
	PostID int    `json:"postId"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// Credentials holds the WordPress application-password login.
type Credentials struct {
	APIBase     string
	Username    string
	AppPassword string
}

func (c Credentials) complete() bool {
	return c.APIBase != "" && c.Username != "" && c.AppPassword != ""
}

// Client talks to the WordPress REST API.
type Client struct {
	creds      Credentials
	httpClient *http.Client
}

// NewClient returns a Client. Missing credentials are reported on first
// use, not here, so a server without WordPress settings still starts.
func NewClient(creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	creds.APIBase = strings.TrimRight(creds.APIBase, "/")
	return &Client{creds: creds, httpClient: httpClient}
}

// Configured reports whether all credentials are present.
func (c *Client) Configured() bool { return c.creds.complete() }

// PushBrief creates a brief post via the custom "brief" post type.
func (c *Client) PushBrief(ctx context.Context, post Post) (Published, error) {
	return c.create(ctx, "/wp/v2/brief", post)
}

// PushArticle creates a standard post.
func (c *Client) PushArticle(ctx context.Context, post Post) (Published, error) {
	return c.create(ctx, "/wp/v2/posts", post)
}

type wpPost struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) create(ctx context.Context, path string, post Post) (Published, error) {
	if !c.creds.complete() {
		return Published{}, ErrNotConfigured
	}
	if post.Status == "" {
		post.Status = "draft"
	}

	body, err := json.Marshal(post)
	if err != nil {
		return Published{}, fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.APIBase+path, bytes.NewReader(body))
	if err != nil {
		return Published{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.creds.Username, c.creds.AppPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Published{}, fmt.Errorf("wordpress request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Published{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e wpError
		msg := "WP push failed"
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		return Published{}, &RemoteError{StatusCode: resp.StatusCode, Message: msg}
	}

	var created wpPost
	if err := json.Unmarshal(data, &created); err != nil {
		return Published{}, fmt.Errorf("parse response: %w", err)
	}
	return Published{PostID: created.ID, Link: created.Link, Status: created.Status}, nil
}
