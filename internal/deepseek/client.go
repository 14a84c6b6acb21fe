// Package deepseek is an HTTP client for the DeepSeek chat-completions API.
// It supports buffered completions and server-sent-event streaming, and is the
// only component in the codebase that talks to the model provider.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

const (
	defaultBaseURL     = "https://api.deepseek.com"
	defaultModel       = "deepseek-chat"
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

var (
	// ErrNotConfigured is returned before any network call when the API key is
	// missing. Construction does not fail on a missing key (the server still
	// boots with AI features degraded); every call fails fast instead.
	ErrNotConfigured = errors.New("deepseek: api key is not configured")
	// ErrNoMessages is returned when a request carries no messages.
	ErrNoMessages = errors.New("deepseek: request must contain at least one message")
)

// UpstreamError is a non-success HTTP status from the upstream API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("deepseek: upstream status %d: %s", e.StatusCode, e.Message)
}

// Message is one chat message on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client issues requests to the chat-completions endpoint. Construct one at
// process start and inject it; it is safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// WithSampling overrides temperature and max_tokens.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(c *Client) {
		if temperature > 0 {
			c.temperature = temperature
		}
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client. The default has no
// timeout because streamed responses stay open for the duration of the reply;
// callers bound calls with a context instead.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a client. An empty apiKey is allowed; calls will return
// ErrNotConfigured until a key is provided.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// errorBody matches the upstream error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs a buffered chat completion and returns the assistant
// message content. Exactly one outbound request; no internal retry.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.send(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("deepseek: decode response: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", nil
	}
	return body.Choices[0].Message.Content, nil
}

// Stream performs a streamed chat completion. Validation, the outbound
// request, and the status check all happen synchronously; a configuration or
// upstream failure is reported before any sequence exists. The returned
// sequence yields content deltas in arrival order, skips malformed frames,
// stops at the [DONE] sentinel, and closes the response body on every exit
// path, including an early break by the caller.
func (c *Client) Stream(ctx context.Context, messages []Message) (iter.Seq2[string, error], error) {
	resp, err := c.send(ctx, messages, true)
	if err != nil {
		return nil, err
	}

	return func(yield func(string, error) bool) {
		defer resp.Body.Close()

		decoder := NewFrameDecoder()
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if !yieldFrames(decoder.Feed(string(buf[:n])), yield) {
					return
				}
				if decoder.Done() {
					return
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					yieldFrames(decoder.Flush(), yield)
					return
				}
				yield("", fmt.Errorf("deepseek: read stream: %w", readErr))
				return
			}
		}
	}, nil
}

// yieldFrames forwards delta frames and reports whether iteration may
// continue. Malformed frames are dropped here so downstream consumers only
// ever see clean deltas.
func yieldFrames(frames []Frame, yield func(string, error) bool) bool {
	for _, frame := range frames {
		switch frame.Kind {
		case FrameDelta:
			if frame.Payload == "" {
				continue
			}
			if !yield(frame.Payload, nil) {
				return false
			}
		case FrameDone:
			return false
		case FrameMalformed:
			continue
		}
	}
	return true
}

func (c *Client) send(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      stream,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("deepseek: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("deepseek: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepseek: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(resp),
		}
	}
	return resp, nil
}

// upstreamMessage extracts the error message from an upstream error body,
// falling back to the HTTP status text.
func upstreamMessage(resp *http.Response) string {
	limited := io.LimitReader(resp.Body, 4096)
	raw, err := io.ReadAll(limited)
	if err == nil {
		var body errorBody
		if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil && body.Error.Message != "" {
			return body.Error.Message
		}
	}
	return http.StatusText(resp.StatusCode)
}
