// Package openai implements the llm.Provider interface on top of the
// OpenAI chat completions API.
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recollect-ai/recollect-go/pkg/llm"
)

const defaultModel = "gpt-4o-mini"

// Config configures the OpenAI client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the chat model name. Defaults to "gpt-4o-mini".
	Model string

	// BaseURL overrides the API endpoint. Empty means the official endpoint.
	BaseURL string
}

// Client is an OpenAI-backed llm.Provider.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai llm: api key is required")
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Client{
		client: openai.NewClientWithConfig(conf),
		model:  model,
	}, nil
}

// Generate generates text from a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateWithMessages generates text from a conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai llm: no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the underlying SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
