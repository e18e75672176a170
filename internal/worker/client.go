package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/event"
)

// maxScanBuffer bounds a single SSE line. Worker text fragments can carry
// whole file contents.
const maxScanBuffer = 4 * 1024 * 1024

// Client talks to an opencode server over HTTP and SSE.
type Client struct {
	baseURL string
	// httpClient is used for request/response calls and carries a timeout;
	// streamClient has none because the SSE response body stays open for
	// the life of the subscription.
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a transport client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

type promptPart struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type promptRequest struct {
	Parts []promptPart `json:"parts"`
}

// CreateSession opens a session titled after the task and sends the task as
// the initial prompt.
func (c *Client) CreateSession(ctx context.Context, task string) (string, error) {
	title := task
	if len(title) > 50 {
		title = title[:50]
	}
	body, err := c.postJSON(ctx, "/session", map[string]any{"title": "Supervised task: " + title})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	sessionID := gjson.GetBytes(body, "id").String()
	if sessionID == "" {
		return "", fmt.Errorf("create session: response missing id")
	}
	debug.Logf("worker: created session %s", sessionID)

	if err := c.prompt(ctx, sessionID, task); err != nil {
		return "", fmt.Errorf("send initial prompt: %w", err)
	}
	return sessionID, nil
}

// SendMessage delivers a follow-up prompt to the session.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) error {
	if err := c.prompt(ctx, sessionID, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Subscribe opens the SSE event stream for a session and decodes it into
// typed events on a channel. The returned subscription's channel closes when
// the stream ends; Err reports a transport error, or nil on clean closure.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	endpoint := c.baseURL + "/event?session=" + url.QueryEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe: event endpoint returned %d", resp.StatusCode)
	}

	sub := &sseSubscription{
		events: make(chan event.Event, 64),
		done:   make(chan struct{}),
		body:   resp.Body,
	}
	go sub.read()
	return sub, nil
}

func (c *Client) prompt(ctx context.Context, sessionID, text string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	_, err := c.postJSON(ctx, path, promptRequest{
		Parts: []promptPart{{Type: "text", Content: text}},
	})
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// sseSubscription reads "data:"-prefixed JSON lines from an open response
// body and decodes them into typed events.
type sseSubscription struct {
	events chan event.Event
	done   chan struct{}
	body   io.ReadCloser

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *sseSubscription) Events() <-chan event.Event {
	return s.events
}

func (s *sseSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the stream and releases the reader even if nobody is
// draining the events channel.
func (s *sseSubscription) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
	_ = s.body.Close()
}

func (s *sseSubscription) read() {
	defer close(s.events)
	defer s.body.Close()

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 64*1024), maxScanBuffer)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Blank keep-alives and "event:"/":" framing lines carry no payload.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		ev := event.Decode([]byte(payload))
		if ev.Kind == event.KindUnknown {
			debug.Logf("worker: ignoring unknown event payload: %.120s", payload)
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		debug.Logf("worker: event stream error: %v", err)
		return
	}
	debug.Logf("worker: event stream closed")
}
