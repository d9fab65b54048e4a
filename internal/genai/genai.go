// Package genai provides the completion gateway to the OpenAI API.
//
// It sends role-tagged message sequences to the chat completion endpoint,
// optionally requesting strict-JSON output, and classifies transport and
// provider failures into the shared error taxonomy.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/lexdraft/lexdraft/internal/models"
)

// Default completion parameters applied when a caller passes zero values.
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4_1Mini
	// DefaultTemperature is used when a caller passes no temperature.
	DefaultTemperature = 0.7
	// DefaultMaxTokens bounds a single completion when unset by the caller.
	DefaultMaxTokens = 800
)

// chatCompletions is the minimal chat completion surface used by the client.
// It matches the openai-go service method so tests can substitute a mock.
type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// CompletionOpts carries per-call tuning. Zero values fall back to defaults.
type CompletionOpts struct {
	Temperature float64
	MaxTokens   int64
}

// ClientInterface is the completion gateway surface consumed by the dialogue
// engine. Defined here so flow tests can inject mock gateways.
type ClientInterface interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts CompletionOpts) (string, error)
	CompleteJSON(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts CompletionOpts, out any) error
}

// Opts holds configuration options for the gateway client.
type Opts struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model identifier.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatCompletions
	model openai.ChatModel
}

// NewClient creates a gateway client. The API key comes from options or the
// OPENAI_API_KEY environment variable; a missing key is a ConfigError and is
// never retried.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("genai.NewClient: no API key configured")
		return nil, &models.ConfigError{Reason: "OPENAI_API_KEY not set"}
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	model := DefaultModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	slog.Debug("genai.NewClient: gateway initialized", "model", model, "base_url_set", cfg.BaseURL != "")
	return &Client{chat: &client.Chat.Completions, model: model}, nil
}

// Complete sends the messages to the model and returns the reply text.
// Transport and provider failures are returned as ProviderError.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts CompletionOpts) (string, error) {
	return c.complete(ctx, messages, opts, false)
}

// CompleteJSON sends the messages with a strict-JSON response format hint and
// unmarshals the reply into out. An invalid JSON body yields a ParseError so
// callers can degrade to a typed sentinel instead of failing the turn.
func (c *Client) CompleteJSON(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts CompletionOpts, out any) error {
	content, err := c.complete(ctx, messages, opts, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		slog.Error("genai.CompleteJSON: response was not valid JSON", "error", err, "content_length", len(content))
		return &models.ParseError{Raw: content, Err: err}
	}
	return nil
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts CompletionOpts, expectJSON bool) (string, error) {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	}
	if expectJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	slog.Debug("genai.complete: sending completion request",
		"model", c.model,
		"messages", len(messages),
		"temperature", temperature,
		"max_tokens", maxTokens,
		"expect_json", expectJSON)

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", classifyProviderError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Error("genai.complete: provider returned no choices")
		return "", &models.ProviderError{Message: "no choices returned"}
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("genai.complete: completion received", "content_length", len(content))
	return content, nil
}

// classifyProviderError maps SDK errors onto ProviderError, propagating the
// provider's own message when present.
func classifyProviderError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		slog.Error("genai.classifyProviderError: provider API error", "status", apiErr.StatusCode, "message", apiErr.Message)
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", apiErr.StatusCode)
		}
		return &models.ProviderError{StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	slog.Error("genai.classifyProviderError: transport error", "error", err)
	return &models.ProviderError{Message: err.Error(), Err: err}
}
