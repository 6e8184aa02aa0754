package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/logger"
)

const maxErrorBody = 512

// Client posts chat turns to the answering backend.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a client for endpoint. A nil httpClient uses a default
// client without its own timeout; turns are bounded by their context.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

func (c *Client) Endpoint() string { return c.endpoint }

// answerResponse mirrors the backend reply. Only Answer is shown to the user.
type answerResponse struct {
	Answer       *string  `json:"answer"`
	Intent       string   `json:"intent,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Method       string   `json:"method,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"`
}

// Answer implements chat.Answerer. Every failure wraps
// chat.ErrUnreachableOrInvalidResponse. A well-formed object without an
// answer field yields an empty answer.
func (c *Client) Answer(ctx context.Context, req chat.Request) (string, error) {
	if req.History == nil {
		req.History = []chat.Turn{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", chat.ErrUnreachableOrInvalidResponse, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", chat.ErrUnreachableOrInvalidResponse, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %w", chat.ErrUnreachableOrInvalidResponse, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", chat.ErrUnreachableOrInvalidResponse, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", chat.ErrUnreachableOrInvalidResponse, err)
	}

	answer, err := decodeAnswer(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", chat.ErrUnreachableOrInvalidResponse, err)
	}
	return answer, nil
}

func decodeAnswer(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", fmt.Errorf("response is not a JSON object")
	}

	var out answerResponse
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	fields := map[string]interface{}{}
	if out.Intent != "" {
		fields["intent"] = out.Intent
	}
	if out.Method != "" {
		fields["method"] = out.Method
	}
	if out.Confidence != nil {
		fields["confidence"] = *out.Confidence
	}
	if out.ResponseTime != nil {
		fields["response_time"] = *out.ResponseTime
	}
	logger.DebugCF("remote", "Answer received", fields)

	if out.Answer == nil {
		return "", nil
	}
	return *out.Answer, nil
}

// Health is the backend status document.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	LLMConfigured bool   `json:"llm_configured"`
	MatchesCount  int    `json:"matches_count,omitempty"`
}

// HealthURL is the health path next to the chat endpoint, e.g. /api/chat
// becomes /api/health.
func (c *Client) HealthURL() (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(&url.URL{Path: "health"}).String(), nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	healthURL, err := c.HealthURL()
	if err != nil {
		return nil, fmt.Errorf("health url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("health check failed: %d - %s", resp.StatusCode, string(body))
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &h, nil
}
