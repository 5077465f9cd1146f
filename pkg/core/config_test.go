package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollect-ai/recollect-go/pkg/core"
)

func validConfig() *core.Config {
	return &core.Config{
		Embedder: core.EmbedderConfig{Provider: "openai", APIKey: "k"},
		Store:    core.StoreConfig{Provider: "memory"},
		Memory:   core.DefaultMemoryConfig(),
	}
}

func TestDefaultMemoryConfig(t *testing.T) {
	cfg := core.DefaultMemoryConfig()

	assert.Equal(t, 7, cfg.WindowTurns)
	assert.Equal(t, 3, cfg.RecentTurns)
	assert.Equal(t, 3, cfg.RetrievalTopK)
	assert.Equal(t, 500, cfg.GistMaxChars)
	assert.Equal(t, 0.3, cfg.Alpha)
	assert.Equal(t, 0.5, cfg.Beta)
	assert.Equal(t, 0.2, cfg.Gamma)
	assert.Equal(t, 0.86, cfg.ForgettingCurve.RecallThreshold)
	assert.Equal(t, 24*time.Hour, cfg.ForgettingCurve.TimeUnit)
	assert.True(t, cfg.ForgettingCurve.UpdateOnRecall)
	assert.Equal(t, 0.1, cfg.ForgettingCurve.EmotionalBonusWeight)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.Strategy = "episodic"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidStrategy))
}

func TestValidateAcceptsLegacyStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.Strategy = "long_memory"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.Beta = -0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestValidateRejectsNegativeSizes(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.WindowTurns = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.ForgettingCurve.RecallThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresProviders(t *testing.T) {
	cfg := validConfig()
	cfg.Embedder.Provider = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Store.Provider = ""
	assert.Error(t, cfg.Validate())
}

func TestEngineErrorFormatting(t *testing.T) {
	err := core.NewEngineError("GetContext", core.ErrStorageOperation)
	require.Error(t, err)
	assert.Equal(t, "recollect: GetContext: storage operation failed", err.Error())
	assert.True(t, errors.Is(err, core.ErrStorageOperation))

	assert.NoError(t, core.NewEngineError("GetContext", nil))
}
