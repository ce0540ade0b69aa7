package api

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

	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/bridge"
	"github.com/zulandar/airminal/internal/settings"
)

// DefaultAddr is where the CLI looks for a running daemon.
var DefaultAddr = fmt.Sprintf("http://127.0.0.1:%d", DefaultPort)

// Client talks to a running daemon's API.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the API at base. A nil client uses one
// with a 15 minute timeout, long enough for a manual automation run.
func NewClient(base string, c *http.Client) *Client {
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: %s %s: read: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: %s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (bridge.Status, error) {
	var st bridge.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *Client) Config(ctx context.Context) (settings.GlobalConfig, error) {
	var resp bridge.ConfigResponse
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &resp)
	return resp.Config, err
}

// SaveConfig sends a whole config document.
func (c *Client) SaveConfig(ctx context.Context, doc []byte) error {
	var resp bridge.SuccessResponse
	if err := c.do(ctx, http.MethodPut, "/api/config", doc, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("api: save config: %s", resp.Error)
	}
	return nil
}

func (c *Client) ClearSessions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions", nil, nil)
}

func (c *Client) TestConnection(ctx context.Context) (bridge.TestResult, error) {
	var res bridge.TestResult
	err := c.do(ctx, http.MethodPost, "/api/test-connection", nil, &res)
	return res, err
}

func (c *Client) Automations(ctx context.Context) (map[string]bridge.AutomationStatus, error) {
	var resp bridge.AutomationsResponse
	err := c.do(ctx, http.MethodGet, "/api/automations", nil, &resp)
	return resp.Automations, err
}

func (c *Client) Trigger(ctx context.Context, id string) (automation.Result, error) {
	var res automation.Result
	err := c.do(ctx, http.MethodPost, "/api/automations/"+url.PathEscape(id)+"/trigger", nil, &res)
	return res, err
}

func (c *Client) Runs(ctx context.Context, id string, limit int) ([]bridge.RunView, error) {
	path := "/api/automations/" + url.PathEscape(id) + "/runs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp RunsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Runs, err
}

func (c *Client) Tabs(ctx context.Context) (TabsResponse, error) {
	var resp TabsResponse
	err := c.do(ctx, http.MethodGet, "/api/tabs", nil, &resp)
	return resp, err
}

// Send posts a raw protocol message and decodes the response into out.
func (c *Client) Send(ctx context.Context, msg any, out any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("api: encode message: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/message", body, out)
}
