// Package tracker is the REST client for the collaboration platform that
// hosts game threads. Calls are synchronous and issued one at a time;
// label and delete operations are idempotent so a crashed run can safely
// repeat them.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider injects per-request headers (auth token etc).
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BearerHeaders builds a HeaderProvider carrying the platform token.
func BearerHeaders(token string) HeaderProvider {
	return func() map[string]string {
		h := map[string]string{}
		if strings.TrimSpace(token) != "" {
			h["Authorization"] = "Bearer " + strings.TrimSpace(token)
		}
		return h
	}
}

func (c *Client) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var t Thread
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/threads/"+esc(threadID), nil, &t, true); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListMessages returns the thread's messages in arrival order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var msgs []Message
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/threads/"+esc(threadID)+"/messages", nil, &msgs, true); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, threadID, body string) (*Message, error) {
	var m Message
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/threads/"+esc(threadID)+"/messages", postMessageRequest{Body: body}, &m, false); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) EditMessage(ctx context.Context, messageID, body string) error {
	return c.doJSON(ctx, fasthttp.MethodPatch, "/messages/"+esc(messageID), editMessageRequest{Body: body}, nil, false)
}

// DeleteMessage removes a message; deleting an already-deleted message is
// treated as success.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	err := c.doJSON(ctx, fasthttp.MethodDelete, "/messages/"+esc(messageID), nil, nil, false)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) UpdateThreadBody(ctx context.Context, threadID, body string) error {
	return c.doJSON(ctx, fasthttp.MethodPatch, "/threads/"+esc(threadID), updateThreadRequest{Body: body}, nil, false)
}

func (c *Client) CloseThread(ctx context.Context, threadID string) error {
	return c.doJSON(ctx, fasthttp.MethodPatch, "/threads/"+esc(threadID), updateThreadRequest{State: StateClosed}, nil, false)
}

func (c *Client) AssignParticipant(ctx context.Context, threadID, participant string) error {
	err := c.doJSON(ctx, fasthttp.MethodPost, "/threads/"+esc(threadID)+"/assignees", assignRequest{Assignee: participant}, nil, false)
	if isConflict(err) {
		return nil
	}
	return err
}

// AddLabel attaches a label; re-adding an existing label is a no-op.
func (c *Client) AddLabel(ctx context.Context, threadID, name string) error {
	err := c.doJSON(ctx, fasthttp.MethodPost, "/threads/"+esc(threadID)+"/labels", labelRequest{Name: name}, nil, false)
	if isConflict(err) {
		return nil
	}
	return err
}

// RemoveLabel detaches a label; removing an absent label is a no-op.
func (c *Client) RemoveLabel(ctx context.Context, threadID, name string) error {
	err := c.doJSON(ctx, fasthttp.MethodDelete, "/threads/"+esc(threadID)+"/labels/"+esc(name), nil, nil, false)
	if isNotFound(err) {
		return nil
	}
	return err
}

// statusError carries the HTTP status for idempotency checks upstream.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tracker api error: status=%d body=%s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == fasthttp.StatusNotFound
}

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && (se.status == fasthttp.StatusConflict || se.status == fasthttp.StatusUnprocessableEntity)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			serr := &statusError{status: status, body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return serr
			}
			lastErr = serr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func esc(s string) string { return url.PathEscape(strings.TrimSpace(s)) }
