// Package agent is the HTTP client for the external conversational agent.
//
// The agent contract is a single POST of a JSON body
//
//	{message, conversation_id, history, metadata{platform, chat_name, timestamp}, system_prompt?}
//
// answered with a JSON object carrying the reply in one of several fields.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/session"
	"golang.org/x/time/rate"
)

// HistoryWindow is how many trailing turns are sent with each request.
const HistoryWindow = 10

const DefaultTimeout = 60 * time.Second

// RequestError is returned for transport failures, non-2xx responses and
// unparsable bodies.
type RequestError struct {
	StatusCode int    // 0 for transport and decode failures
	StatusText string // reason phrase of a non-2xx response
	Op         string // "request", "decode", ...
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API %d: %s", e.StatusCode, e.StatusText)
	}
	return fmt.Sprintf("agent: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Request is one agent call.
type Request struct {
	Endpoint       string
	SystemPrompt   string
	Message        string
	ConversationID string
	History        []session.Turn
	ChatName       string
	Platform       string
}

type payload struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id"`
	History        []session.Turn `json:"history"`
	Metadata       metadata       `json:"metadata"`
	SystemPrompt   string         `json:"system_prompt,omitempty"`
}

type metadata struct {
	Platform  string `json:"platform"`
	ChatName  string `json:"chat_name"`
	Timestamp int64  `json:"timestamp"`
}

// Opts configures a Client.
type Opts struct {
	HTTPClient        *http.Client
	Timeout           time.Duration // per call; 0 means DefaultTimeout
	RequestsPerMinute int           // 0 means unlimited
	Now               func() time.Time
	Logger            *logger.Logger
	// Observe, when set, is called after every call with its duration.
	Observe func(platform string, d time.Duration, err error)
}

// Client calls the agent endpoint.
type Client struct {
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	now     func() time.Time
	log     *logger.Logger
	observe func(string, time.Duration, error)
}

// New creates a Client.
func New(opts Opts) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     logger.OrNop(opts.Logger),
		observe: opts.Observe,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// Call sends req and returns the extracted reply, which may be empty.
func (c *Client) Call(ctx context.Context, req Request) (reply string, err error) {
	start := c.now()
	defer func() {
		if c.observe != nil {
			c.observe(req.Platform, c.now().Sub(start), err)
		}
	}()

	if req.Endpoint == "" {
		return "", &RequestError{Op: "request", Err: fmt.Errorf("endpoint is required")}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &RequestError{Op: "rate limit", Err: err}
		}
	}

	history := req.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	if history == nil {
		history = []session.Turn{}
	}
	body, err := json.Marshal(payload{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		History:        history,
		Metadata: metadata{
			Platform:  req.Platform,
			ChatName:  req.ChatName,
			Timestamp: c.now().UnixMilli(),
		},
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return "", &RequestError{Op: "encode", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &RequestError{Op: "request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &RequestError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", &RequestError{StatusCode: resp.StatusCode, StatusText: statusText(resp)}
	}

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", &RequestError{Op: "decode", Err: err}
	}
	reply = ExtractReply(data)
	c.log.Debug("agent replied", "platform", req.Platform, "chat", req.ChatName, "reply_len", len(reply))
	return reply, nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// replyFields are checked in order; the first non-empty string wins.
var replyFields = []string{"response", "reply", "text", "message", "content"}

// ExtractReply pulls the reply text out of a decoded agent response.
func ExtractReply(data interface{}) string {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	for _, f := range replyFields {
		if s, ok := obj[f].(string); ok && s != "" {
			return s
		}
	}
	if choices, ok := obj["choices"].([]interface{}); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := first["message"].(map[string]interface{}); ok {
				if s, ok := msg["content"].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	if s, ok := obj["output"].(string); ok {
		return s
	}
	return ""
}
