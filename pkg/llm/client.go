// Package llm is the text-generation collaborator: an OpenAI compatible chat
// completion client with classified transport errors, bounded exponential
// backoff and streaming.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultBaseURL        = "https://api.openai.com/v1/chat/completions"
)

// Request is one prompt for the model. Zero values fall back to the client config.
type Request struct {
	SystemPrompt string
	Prompt       string
	Model        string
	Temperature  *float64
	MaxTokens    int
}

// Chunk is one streamed delta. Either field may be empty.
type Chunk struct {
	Content          string
	ReasoningContent string
}

// TextGenerator produces text from prompts.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
	GenerateStream(ctx context.Context, req Request, onChunk func(Chunk)) (string, error)
}

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets the total number of attempts, first try included.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff sets the base delay and its cap. The n-th retry waits base×2^n.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	client := &Client{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatCompletionMessage struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
	Reasoning        string `json:"reasoning"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMessage `json:"message"`
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues a non-streaming completion, retrying transport errors.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := c.buildPayload(req, false)
	if err != nil {
		return "", err
	}

	attempts := c.retryAttempts()

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		content, err := c.completeOnce(ctx, payload)
		if err == nil {
			return content, nil
		}

		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}

		err = c.sleep(ctx, delay)
		if err != nil {
			return "", err
		}
	}

	var transportErr *TransportError
	if errors.As(lastErr, &transportErr) {
		return "", fmt.Errorf("%w: failed after %d attempts: %w", ErrGeneration, attempts, lastErr)
	}

	return "", lastErr
}

func (c *Client) buildPayload(req Request, stream bool) (chatCompletionRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return chatCompletionRequest{}, fmt.Errorf("%w: prompt required", ErrGeneration)
	}

	payload := chatCompletionRequest{
		Model:       firstNonEmpty(req.Model, c.cfg.Model),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      stream,
	}

	if req.Temperature != nil {
		payload.Temperature = *req.Temperature
	}

	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}

	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}

	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: prompt})

	return payload, nil
}

func (c *Client) newRequest(ctx context.Context, payload chatCompletionRequest) (*http.Request, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm request: new request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return req, nil
}

// do sends the request and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, payload chatCompletionRequest) (*http.Response, error) {
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))

		return nil, classifyStatus(resp.StatusCode, string(body), retryAfter)
	}

	return resp, nil
}

func (c *Client) completeOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	resp, err := c.do(ctx, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyRequestError(ctx, err)
	}

	var completion chatCompletionResponse

	err = json.Unmarshal(body, &completion)
	if err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrGeneration, err)
	}

	if completion.Error != nil {
		return "", fmt.Errorf("%w: api error: %s", ErrGeneration, strings.TrimSpace(completion.Error.Message))
	}

	for _, choice := range completion.Choices {
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, nil
		}
	}

	return "", fmt.Errorf("%w: empty completion", ErrGeneration)
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}

	return c.retryMaxAttempts
}

// retryDelay reports whether a failed zero-based attempt is retried and how
// long to wait first.
func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt+1 >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		return 0, false
	}

	if transportErr.RetryAfter > 0 {
		return c.capDelay(transportErr.RetryAfter), true
	}

	return c.backoffDelay(attempt), true
}

// backoffDelay returns base×2^attempt, capped at the max delay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}

	delay := c.retryBaseDelay
	for i := 0; i < attempt; i++ {
		if c.retryMaxDelay > 0 && delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}

		delay *= 2
	}

	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}

	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}

	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if delay <= 0 {
		return nil
	}

	if c.sleeper != nil {
		c.sleeper(delay)

		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}

		return time.Duration(seconds) * time.Second, true
	}

	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}

		return delay, true
	}

	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}

	return ""
}
