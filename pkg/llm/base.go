// Package llm defines the text-generation provider interface used by the
// context engine for profile distillation and summary generation.
package llm

import "context"

// Provider is the interface implemented by all text-generation backends.
type Provider interface {
	// Generate generates text from a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages generates text from a conversation history
	// (system, user and assistant messages).
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close closes the provider and releases resources.
	Close() error
}

// Message is a single message in a conversation.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// MaxTokens limits the response length in tokens.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64

	// Stop contains sequences that end generation.
	Stop []string
}

// GenerateOption configures generation options.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of response tokens.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// WithStop sets the stop sequences.
func WithStop(stop []string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// ApplyGenerateOptions resolves a slice of GenerateOption functions against
// the defaults: Temperature=0.3, MaxTokens=1200, TopP=1.0.
//
// Distillation favors low temperature so that extracted profiles stay stable
// across runs.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   1200,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
