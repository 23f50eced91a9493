package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
	userAgent      = "digital-immortality-backend"

	// maxLineSize bounds a single SSE line from the provider.
	maxLineSize = 1 << 20
	doneMarker  = "[DONE]"
)

// Client implements Service against an OpenAI-compatible
// /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another compatible provider or a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIKey sets the bearer token. Without it every call fails with
// ErrUnavailable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// NewClient creates a chat completion client.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req Request) (*Reply, error) {
	resp, err := c.doRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var body completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, c.transportError(ctx, err)
		}
		return nil, &UpstreamError{Kind: UpstreamErrorKindUpstream, Status: resp.StatusCode, cause: fmt.Errorf("%w: decoding completion: %v", ErrUpstream, err)}
	}
	if len(body.Choices) == 0 {
		return nil, &UpstreamError{Kind: UpstreamErrorKindUpstream, Status: resp.StatusCode, cause: fmt.Errorf("%w: completion has no choices", ErrUpstream)}
	}
	return &Reply{
		Text:         body.Choices[0].Message.Content,
		Model:        firstNonEmpty(body.Model, c.model),
		FinishReason: body.Choices[0].FinishReason,
	}, nil
}

func (c *Client) Stream(ctx context.Context, req Request, emit func(Delta) error) (*Reply, error) {
	resp, err := c.doRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	reply := &Reply{Model: c.model}
	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	done := false
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneMarker {
			done = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, c.streamError(resp, fmt.Errorf("decoding chunk: %v", err))
		}
		if chunk.Error != nil {
			return nil, c.streamError(resp, errors.New(chunk.Error.Message))
		}
		if chunk.Model != "" {
			reply.Model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil {
				reply.FinishReason = *choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if err := emit(Delta{Text: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, c.transportError(ctx, fmt.Errorf("reading stream: %w", err))
	}
	if !done && reply.FinishReason == "" {
		return nil, c.streamError(resp, errors.New("stream ended unexpectedly"))
	}

	reply.Text = text.String()
	return reply, nil
}

// transportError classifies a failure to exchange bytes with the provider.
// Caller cancellation is returned as is; deadlines, whether from ctx or the
// http.Client timeout, become UpstreamErrorKindTimeout.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if isTimeout(err) {
		applog.LogWarn(ctx, "chat upstream timed out", zap.Error(err))
		return &UpstreamError{Kind: UpstreamErrorKindTimeout, cause: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	applog.LogWarn(ctx, "chat upstream request failed", zap.Error(err))
	return &UpstreamError{Kind: UpstreamErrorKindUnavailable, cause: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) streamError(resp *http.Response, cause error) error {
	return &UpstreamError{Kind: UpstreamErrorKindUpstream, Status: resp.StatusCode, cause: fmt.Errorf("%w: %v", ErrUpstream, cause)}
}

// doRequest posts the completion request and returns the response when the
// provider answered 2xx. Other outcomes become *UpstreamError.
func (c *Client) doRequest(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, &UpstreamError{Kind: UpstreamErrorKindUnavailable, cause: fmt.Errorf("%w: no API key configured", ErrUnavailable)}
	}

	payload, err := json.Marshal(completionRequest{Model: c.model, Messages: req.Messages(), Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, c.statusError(ctx, resp, strings.TrimSpace(string(detail)))
}

func (c *Client) statusError(ctx context.Context, resp *http.Response, detail string) *UpstreamError {
	e := &UpstreamError{
		Status:     resp.StatusCode,
		RetryAfter: strings.TrimSpace(resp.Header.Get("Retry-After")),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind, e.cause = UpstreamErrorKindRateLimited, ErrRateLimited
		applog.LogWarn(ctx, "chat upstream rate limit exceeded",
			zap.Int("status", resp.StatusCode),
			zap.String("Retry-After", e.RetryAfter))
	case resp.StatusCode >= 500:
		e.Kind, e.cause = UpstreamErrorKindUnavailable, ErrUnavailable
		applog.LogWarn(ctx, "chat upstream unavailable", zap.Int("status", resp.StatusCode), zap.String("detail", detail))
	default:
		e.Kind, e.cause = UpstreamErrorKindUpstream, ErrUpstream
		applog.LogWarn(ctx, "chat upstream rejected request", zap.Int("status", resp.StatusCode), zap.String("detail", detail))
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Compile-time interface check
var _ Service = (*Client)(nil)
