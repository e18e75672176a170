// Package reviewer turns a review context into a verdict against an
// OpenAI-compatible chat-completions endpoint, surviving transient failures
// with bounded exponential backoff.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/worksonmyai/overseer/internal/debug"
)

const (
	// DefaultMaxAttempts is the reference number of review attempts.
	DefaultMaxAttempts = 3
	// requestTimeout is the per-attempt deadline.
	requestTimeout = 30 * time.Second
)

// fallbackReason is returned with the fallback verdict when every attempt
// failed. The max-iterations guard bounds the damage of continuing blind.
const fallbackReason = "reviewer unavailable; continuing on last known state"

// Client calls the reviewer endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	maxAttempts int
	fallback    Action

	// Backoff returns the sleep before the next attempt. Overridable for
	// tests; defaults to 2^attempt seconds (1s, 2s, 4s).
	Backoff func(attempt int) time.Duration

	// OnAttemptFailure, when set, observes each failed attempt so callers
	// can log transient and permanent failures distinguishably.
	OnAttemptFailure func(attempt int, err *AttemptError)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Model       string
	MaxAttempts int    // defaults to DefaultMaxAttempts
	Fallback    Action // verdict action after retry exhaustion, defaults to continue
}

// New creates a reviewer client for the given endpoint.
func New(opts Options) *Client {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	fallback := opts.Fallback
	if fallback == "" {
		fallback = ActionContinue
	}
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		maxAttempts: maxAttempts,
		fallback:    fallback,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// Review performs a single review attempt. Failures are returned as
// *AttemptError carrying the transient/permanent classification.
func (c *Client) Review(ctx context.Context, rc Context) (Verdict, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(rc)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Verdict{}, &AttemptError{Err: fmt.Errorf("marshal review request: %w", err)}
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, &AttemptError{Err: fmt.Errorf("build review request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	debug.Logf("reviewer: POST %s (iteration %d, %d summary lines)", endpoint, rc.Iteration, len(rc.PreviousSummaries))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, &AttemptError{Transient: true, Err: fmt.Errorf("send review request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, &AttemptError{Transient: true, Err: fmt.Errorf("read review response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("reviewer endpoint returned %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
		return Verdict{}, &AttemptError{Transient: retryableStatus(resp.StatusCode), Err: err}
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return Verdict{}, &AttemptError{Err: fmt.Errorf("reviewer response missing message content")}
	}

	debug.Logf("reviewer: raw content: %s", truncate(content.String(), 300))

	verdict, err := ParseVerdict(content.String())
	if err != nil {
		return Verdict{}, &AttemptError{Err: err}
	}
	return verdict, nil
}

// ReviewWithRetry calls Review up to the configured number of attempts,
// sleeping 2^attempt seconds after each failure. Both transient and
// permanent failures consume retry budget; the classification is surfaced
// through OnAttemptFailure and debug logs. After exhausting attempts it
// returns the fallback verdict and retryCount equal to the attempt budget.
func (c *Client) ReviewWithRetry(ctx context.Context, rc Context) (Verdict, int) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		verdict, err := c.Review(ctx, rc)
		if err == nil {
			if attempt > 0 {
				debug.Logf("reviewer: succeeded after %d retries", attempt)
			}
			return verdict, attempt
		}

		attemptErr, ok := err.(*AttemptError)
		if !ok {
			attemptErr = &AttemptError{Err: err}
		}
		debug.Logf("reviewer: attempt %d/%d failed: %v", attempt+1, c.maxAttempts, attemptErr)
		if c.OnAttemptFailure != nil {
			c.OnAttemptFailure(attempt, attemptErr)
		}

		// The reference sleeps after every failed attempt, including the
		// last, before falling back.
		select {
		case <-time.After(c.Backoff(attempt)):
		case <-ctx.Done():
			return Verdict{Action: c.fallback, Reason: fallbackReason}, attempt + 1
		}
	}

	debug.Logf("reviewer: all %d attempts failed, falling back to %s", c.maxAttempts, c.fallback)
	return Verdict{Action: c.fallback, Reason: fallbackReason}, c.maxAttempts
}

// retryableStatus reports whether an HTTP status is a transient failure:
// 408, 425, 429 and all 5xx.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}
