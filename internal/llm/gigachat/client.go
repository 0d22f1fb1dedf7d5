// Package gigachat implements the llm.Client interface for the Sber
// GigaChat API: OAuth2 client-credentials auth, retry with backoff, and
// SSE streaming normalized into ordered chunks.
package gigachat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/king-ai/king/internal/llm"
)

const (
	// DefaultBaseURL is the GigaChat generation API root.
	DefaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"

	// DefaultModel is the default generation model.
	DefaultModel = "GigaChat"

	// DefaultEmbeddingModel is the model used for the embeddings endpoint.
	DefaultEmbeddingModel = "Embeddings"

	// DefaultTemperature is applied when the caller leaves it unset.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is applied when the caller leaves it unset.
	DefaultMaxTokens = 1000

	// DefaultStreamIdleTimeout ends a stream when no bytes arrive for this
	// long; surfaced as a network failure, never retried.
	DefaultStreamIdleTimeout = 30 * time.Second
)

// Config holds the externally supplied settings for a GigaChat client.
type Config struct {
	ClientID     string
	ClientSecret string
	Scope        string
	BaseURL      string
	TokenURL     string
	Model        string

	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RequestTimeout    time.Duration
	StreamIdleTimeout time.Duration
	TokenSafetyMargin time.Duration
}

// Client implements the llm.Client interface using the GigaChat API.
type Client struct {
	baseURL        string
	model          string
	embeddingModel string
	idleTimeout    time.Duration
	logger         *slog.Logger

	tokens *TokenManager
	exec   *executor

	// streamExec uses a client with no overall timeout; cancellation and
	// the idle timer bound the stream instead.
	streamExec *executor
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets the logger used for retry and stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEmbeddingModel overrides the embeddings model name.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) { c.embeddingModel = model }
}

// New creates a GigaChat client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = DefaultStreamIdleTimeout
	}

	c := &Client{
		baseURL:        trimSlash(cfg.BaseURL),
		model:          cfg.Model,
		embeddingModel: DefaultEmbeddingModel,
		idleTimeout:    cfg.StreamIdleTimeout,
		logger:         slog.Default(),
	}

	c.tokens = NewTokenManager(TokenManagerConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		TokenURL:     cfg.TokenURL,
		SafetyMargin: cfg.TokenSafetyMargin,
	})

	for _, opt := range opts {
		opt(c)
	}

	policy := NewRetryPolicy(cfg.MaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	c.exec = newExecutor(c.tokens, policy, &http.Client{Timeout: cfg.RequestTimeout}, c.logger)
	c.streamExec = newExecutor(c.tokens, policy, &http.Client{}, c.logger)

	return c
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// buildMessages flattens the optional system prompt, history and the user
// prompt into the provider's message list.
func buildMessages(prompt string, history []llm.Message, opts llm.GenerateOptions) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if opts.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: prompt})
	return messages
}

func (c *Client) buildRequest(prompt string, history []llm.Message, opts llm.GenerateOptions, stream bool) ([]byte, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    buildMessages(prompt, history, opts),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, &Error{Kind: KindClient, Msg: "marshaling request", Cause: err}
	}
	return body, nil
}

// Generate sends a prompt to GigaChat and returns the complete response.
func (c *Client) Generate(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (*llm.Result, error) {
	body, err := c.buildRequest(prompt, history, opts, false)
	if err != nil {
		return nil, err
	}

	data, err := c.exec.do(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Kind: KindClient, Msg: "decoding response", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindClient, Msg: "response contains no choices"}
	}

	choice := resp.Choices[0]
	result := &llm.Result{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Model:        resp.Model,
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "length", "max_tokens":
		return llm.FinishLength
	case "error", "blacklist":
		return llm.FinishError
	default:
		return llm.FinishStop
	}
}

// GenerateStream sends a prompt to GigaChat and returns a channel of
// response chunks in arrival order. The executor retries only until the
// streaming handshake succeeds; once the body is open, any failure is
// terminal and delivered as the channel's last element.
func (c *Client) GenerateStream(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	body, err := c.buildRequest(prompt, history, opts, true)
	if err != nil {
		return nil, err
	}

	rc, err := c.streamExec.doStream(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk)
	go c.pumpStream(ctx, rc, chunks)
	return chunks, nil
}

// pumpStream decodes frames off the open body and relays them to out,
// enforcing the idle timeout and caller cancellation. The body is closed on
// every exit path.
func (c *Client) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- llm.StreamChunk) {
	defer close(out)
	defer body.Close()

	// Closing the body is the only way to unblock a stalled read.
	pumpDone := make(chan struct{})
	defer close(pumpDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-pumpDone:
		}
	}()

	dec := NewStreamDecoder(body)

	type decoded struct {
		ev  streamEvent
		err error
	}
	events := make(chan decoded)
	go func() {
		defer close(events)
		for {
			ev, err := dec.Next()
			select {
			case events <- decoded{ev, err}:
			case <-pumpDone:
				return
			}
			if err != nil || ev.Final {
				return
			}
		}
	}()

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			trySend(out, llm.StreamChunk{Err: ctx.Err()})
			return

		case <-idle.C:
			c.logger.Warn("stream idle timeout exceeded", "timeout", c.idleTimeout)
			sendTerminal(ctx, out, llm.StreamChunk{Err: &Error{Kind: KindNetwork, Msg: "stream idle timeout"}})
			return

		case d, ok := <-events:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)

			if d.err != nil {
				// A context cancellation surfaces as a read error on the
				// closed body; report the cancellation itself.
				if ctx.Err() != nil {
					trySend(out, llm.StreamChunk{Err: ctx.Err()})
				} else {
					sendTerminal(ctx, out, llm.StreamChunk{Err: d.err})
				}
				return
			}
			if d.ev.Final {
				select {
				case out <- llm.StreamChunk{Final: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- llm.StreamChunk{Delta: d.ev.Delta}:
			case <-ctx.Done():
				trySend(out, llm.StreamChunk{Err: ctx.Err()})
				return
			}
		}
	}
}

// sendTerminal blocks until the failure chunk is delivered, so a consumer
// that is between receives still observes the failure before the channel
// closes. Only the caller's own cancellation releases the send.
func sendTerminal(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) {
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

// trySend reports the caller's own cancellation without blocking; the
// consumer that cancelled may never receive again.
func trySend(out chan<- llm.StreamChunk, chunk llm.StreamChunk) {
	select {
	case out <- chunk:
	default:
	}
}

// embeddingRequest is the embeddings endpoint request body.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the embeddings endpoint response body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.embeddingModel, Input: []string{text}})
	if err != nil {
		return nil, &Error{Kind: KindClient, Msg: "marshaling embeddings request", Cause: err}
	}

	data, err := c.exec.do(ctx, c.baseURL+"/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Kind: KindClient, Msg: "decoding embeddings response", Cause: err}
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Kind: KindClient, Msg: "embeddings response contains no data"}
	}
	return resp.Data[0].Embedding, nil
}

// HealthCheck reports whether a credential can be acquired.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "gigachat health check failed", "error", err)
		return false
	}
	return true
}

// Ensure Client implements the llm.Client interface.
var _ llm.Client = (*Client)(nil)
