// Package recollect assembles the memory context engine from
// configuration: a message/profile store, an embedding provider, an
// optional extractor LLM, the context engine and the consolidation
// service behind one client.
package recollect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recollect-ai/recollect-go/pkg/consolidation"
	"github.com/recollect-ai/recollect-go/pkg/core"
	"github.com/recollect-ai/recollect-go/pkg/embedder"
	openaiembedder "github.com/recollect-ai/recollect-go/pkg/embedder/openai"
	qwenembedder "github.com/recollect-ai/recollect-go/pkg/embedder/qwen"
	"github.com/recollect-ai/recollect-go/pkg/llm"
	"github.com/recollect-ai/recollect-go/pkg/llm/deepseek"
	openaillm "github.com/recollect-ai/recollect-go/pkg/llm/openai"
	qwenllm "github.com/recollect-ai/recollect-go/pkg/llm/qwen"
	"github.com/recollect-ai/recollect-go/pkg/logger"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
	memorystore "github.com/recollect-ai/recollect-go/pkg/storage/memory"
	"github.com/recollect-ai/recollect-go/pkg/storage/mysql"
	"github.com/recollect-ai/recollect-go/pkg/storage/postgres"
	"github.com/recollect-ai/recollect-go/pkg/storage/sqlite"
)

// Client bundles the context engine and the consolidation service built
// from one configuration.
type Client struct {
	engine       *core.Engine
	consolidator *consolidation.Service

	messages storage.MessageStore
	profiles profile.Store
	embedder embedder.Provider
	llm      llm.Provider
	strategy string
	logger   *slog.Logger
}

// New builds a Client from cfg. The embedding provider is wrapped with a
// circuit breaker so a failing provider degrades retrieval instead of
// hammering the API. A nil log discards output.
func New(cfg *core.Config, log *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, core.NewEngineError("New", fmt.Errorf("%w: config is required", core.ErrInvalidConfig))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	messages, profiles, err := buildStores(cfg.Store)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	emb = embedder.NewResilient(emb)

	model, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	engine, err := core.NewEngine(core.Dependencies{
		Messages: messages,
		Profiles: profiles,
		Embedder: emb,
		LLM:      model,
		Logger:   log,
	}, cfg.Memory)
	if err != nil {
		return nil, err
	}

	consolidator := consolidation.NewService(messages, profiles,
		emb, consolidation.NewExtractor(model),
		consolidation.Config{
			InitialG:               cfg.Memory.ForgettingCurve.InitialG,
			EncodingSalienceWeight: cfg.Memory.ForgettingCurve.EncodingSalienceWeight,
		},
		log)

	return &Client{
		engine:       engine,
		consolidator: consolidator,
		messages:     messages,
		profiles:     profiles,
		embedder:     emb,
		llm:          model,
		strategy:     cfg.Memory.Strategy,
		logger:       log,
	}, nil
}

func buildStores(cfg core.StoreConfig) (storage.MessageStore, profile.Store, error) {
	switch cfg.Provider {
	case "memory":
		messages, err := memorystore.NewStore()
		if err != nil {
			return nil, nil, core.NewEngineError("New", err)
		}
		return messages, memorystore.NewProfileStore(), nil

	case "sqlite":
		store, err := sqlite.NewStore(&sqlite.Config{
			DBPath: optString(cfg.Options, "db_path", "./recollect.db"),
		})
		if err != nil {
			return nil, nil, core.NewEngineError("New", err)
		}
		return store, store, nil

	case "postgres":
		store, err := postgres.NewStore(&postgres.Config{
			Host:     optString(cfg.Options, "host", "localhost"),
			Port:     optInt(cfg.Options, "port", 5432),
			User:     optString(cfg.Options, "user", "postgres"),
			Password: optString(cfg.Options, "password", ""),
			DBName:   optString(cfg.Options, "db_name", "recollect"),
			SSLMode:  optString(cfg.Options, "ssl_mode", "disable"),
		})
		if err != nil {
			return nil, nil, core.NewEngineError("New", err)
		}
		return store, store, nil

	case "mysql":
		store, err := mysql.NewStore(&mysql.Config{
			Host:     optString(cfg.Options, "host", "127.0.0.1"),
			Port:     optInt(cfg.Options, "port", 3306),
			User:     optString(cfg.Options, "user", "root"),
			Password: optString(cfg.Options, "password", ""),
			DBName:   optString(cfg.Options, "db_name", "recollect"),
		})
		if err != nil {
			return nil, nil, core.NewEngineError("New", err)
		}
		return store, store, nil

	default:
		return nil, nil, core.NewEngineError("New",
			fmt.Errorf("%w: unknown store provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

func buildEmbedder(cfg core.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiembedder.NewClient(&openaiembedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		return qwenembedder.NewClient(&qwenembedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, core.NewEngineError("New",
			fmt.Errorf("%w: unknown embedder provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

func buildLLM(cfg core.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "":
		// No extractor model. Distillation uses the rule-based fallback.
		return nil, nil
	case "openai":
		return openaillm.NewClient(&openaillm.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "qwen":
		return qwenllm.NewClient(&qwenllm.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "deepseek":
		return deepseek.NewClient(&deepseek.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	default:
		return nil, core.NewEngineError("New",
			fmt.Errorf("%w: unknown llm provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

// Engine exposes the underlying context engine.
func (c *Client) Engine() *core.Engine {
	return c.engine
}

// Consolidator exposes the underlying consolidation service.
func (c *Client) Consolidator() *consolidation.Service {
	return c.consolidator
}

// Record appends one utterance to the user's history.
func (c *Client) Record(ctx context.Context, userID string, taskID int, content string, isUser bool) (*storage.Message, error) {
	return c.engine.Record(ctx, userID, taskID, content, isUser)
}

// GetContext builds the context string using the configured default
// strategy.
func (c *Client) GetContext(ctx context.Context, userID string, currentTaskID int, query string) (string, error) {
	return c.engine.GetContext(ctx, userID, c.strategy, currentTaskID, query)
}

// GetContextWithStrategy builds the context string for an explicit
// strategy, canonical or legacy.
func (c *Client) GetContextWithStrategy(ctx context.Context, userID, strategy string, currentTaskID int, query string) (string, error) {
	return c.engine.GetContext(ctx, userID, strategy, currentTaskID, query)
}

// Consolidate runs post-session consolidation for one (user, task) pair
// under the configured default strategy.
func (c *Client) Consolidate(ctx context.Context, userID string, taskID int) (*consolidation.Report, error) {
	return c.consolidator.Consolidate(ctx, userID, taskID, core.NormalizeStrategy(c.strategy))
}

// GetStats summarizes the user's stored history.
func (c *Client) GetStats(ctx context.Context, userID string) (core.Stats, error) {
	return c.engine.GetStats(ctx, userID)
}

// Close releases all providers and stores.
func (c *Client) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(c.embedder.Close())
	if c.llm != nil {
		keep(c.llm.Close())
	}
	keep(c.messages.Close())
	if any(c.profiles) != any(c.messages) {
		keep(c.profiles.Close())
	}
	return firstErr
}

func optString(options map[string]any, key, fallback string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func optInt(options map[string]any, key string, fallback int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
