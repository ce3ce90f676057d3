// Package client talks to a running zboard server over HTTP.
//
// It is used by the CLI's client commands and by the integration tests.
// Requests and responses are JSON; non-2xx answers come back as *APIError
// carrying the server's problem body.
//
//	c := client.New("http://localhost:8080")
//	w, err := c.Create(ctx, widget.CreateCommand{Geometry: widget.Geometry{Width: 10, Height: 10}})
//	if client.IsConflict(err) {
//	    // the server gave up retrying
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/zboard/internal/board"
	"github.com/dreamware/zboard/internal/widget"
)

// DefaultTimeout bounds every request made by a client from New
const DefaultTimeout = 5 * time.Second

// Client is a zboard HTTP client
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for the server at baseURL
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// APIError is a non-2xx response
type APIError struct {
	Status int    `json:"-"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Title)
	}
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Title, e.Detail)
}

// NotFound reports a 404
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Conflict reports a 409, a write that kept losing to concurrent writers
func (e *APIError) Conflict() bool { return e.Status == http.StatusConflict }

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// IsConflict reports whether err is a 409 from the server
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Conflict()
}

// Create places a new widget
func (c *Client) Create(ctx context.Context, cmd widget.CreateCommand) (widget.Widget, error) {
	var w widget.Widget
	err := c.do(ctx, http.MethodPost, "/widget", cmd, &w)
	return w, err
}

// Update replaces an existing widget
func (c *Client) Update(ctx context.Context, id uuid.UUID, cmd widget.UpdateCommand) (widget.Widget, error) {
	var w widget.Widget
	err := c.do(ctx, http.MethodPost, "/widget/"+id.String(), cmd, &w)
	return w, err
}

// Get fetches a widget
func (c *Client) Get(ctx context.Context, id uuid.UUID) (widget.Widget, error) {
	var w widget.Widget
	err := c.do(ctx, http.MethodGet, "/widget/"+id.String(), nil, &w)
	return w, err
}

// Delete removes a widget and returns it
func (c *Client) Delete(ctx context.Context, id uuid.UUID) (widget.Widget, error) {
	var w widget.Widget
	err := c.do(ctx, http.MethodDelete, "/widget/"+id.String(), nil, &w)
	return w, err
}

// List fetches one page of the board
func (c *Client) List(ctx context.Context, page widget.Page) ([]widget.Widget, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page.Number))
	q.Set("pageSize", strconv.Itoa(page.Size))
	var ws []widget.Widget
	err := c.do(ctx, http.MethodGet, "/widget?"+q.Encode(), nil, &ws)
	return ws, err
}

// InArea fetches the widgets whose centerpoint lies strictly inside area
func (c *Client) InArea(ctx context.Context, area widget.Area) ([]widget.Widget, error) {
	var ws []widget.Widget
	err := c.do(ctx, http.MethodPost, "/widget/in-area", area, &ws)
	return ws, err
}

// Stats fetches operation and storage statistics
func (c *Client) Stats(ctx context.Context) (board.Stats, error) {
	var stats board.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
