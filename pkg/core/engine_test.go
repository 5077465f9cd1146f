package core_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollect-ai/recollect-go/pkg/consolidation"
	"github.com/recollect-ai/recollect-go/pkg/core"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage/memory"
)

// mapEmbedder returns a fixed vector per exact text, a default otherwise.
type mapEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func (m mapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m mapEmbedder) Dimensions() int { return 3 }
func (m mapEmbedder) Close() error    { return nil }

type fixture struct {
	engine   *core.Engine
	store    *memory.Store
	profiles *memory.ProfileStore
	now      time.Time
}

func newFixture(t *testing.T, cfg core.MemoryConfig, emb mapEmbedder) *fixture {
	t.Helper()

	store, err := memory.NewStore()
	require.NoError(t, err)
	profiles := memory.NewProfileStore()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine, err := core.NewEngine(core.Dependencies{
		Messages: store,
		Profiles: profiles,
		Embedder: emb,
		Now:      func() time.Time { return now },
	}, cfg)
	require.NoError(t, err)

	return &fixture{engine: engine, store: store, profiles: profiles, now: now}
}

// record appends a full turn at a given age.
func (f *fixture) record(t *testing.T, taskID int, age time.Duration, user, assistant string) {
	t.Helper()
	ctx := context.Background()

	f.store.SetClock(func() time.Time { return f.now.Add(-age) })
	_, err := f.store.Append(ctx, "u1", taskID, user, true)
	require.NoError(t, err)
	if assistant != "" {
		_, err = f.store.Append(ctx, "u1", taskID, assistant, false)
		require.NoError(t, err)
	}
}

func TestGetContextEmptyHistoryAllStrategies(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	for _, strategy := range []string{"none", "recency_window", "gist", "hybrid"} {
		got, err := f.engine.GetContext(ctx, "u1", strategy, 1, "anything")
		require.NoError(t, err)
		assert.Empty(t, got, "strategy %s", strategy)
	}
}

func TestGetContextNoneAlwaysEmpty(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, time.Hour, "hello there", "hi!")
	f.record(t, 1, 50*time.Minute, "remember me?", "of course")

	got, err := f.engine.GetContext(ctx, "u1", "none", 2, "remember me?")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetContextUnknownStrategyEmpty(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, time.Hour, "hello there", "hi!")

	got, err := f.engine.GetContext(ctx, "u1", "episodic", 2, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetContextRecencyWindowFIFO(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		f.record(t, 1, time.Duration(60-i)*time.Minute,
			fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
	}

	got, err := f.engine.GetContext(ctx, "u1", "recency_window", 2, "")
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.True(t, strings.HasPrefix(got, "Recent conversation:"))

	// Only the last 7 of 10 turns survive, oldest first.
	assert.NotContains(t, got, "question 3")
	assert.Contains(t, got, "question 4")
	assert.Contains(t, got, "question 10")
	assert.Less(t, strings.Index(got, "question 4"), strings.Index(got, "question 10"))
}

func TestGetContextRecencyWindowShortHistory(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, time.Hour, "only turn", "only reply")

	got, err := f.engine.GetContext(ctx, "u1", "recency_window", 2, "")
	require.NoError(t, err)
	assert.Contains(t, got, "User: only turn")
	assert.Contains(t, got, "Assistant: only reply")
}

func TestGetContextRecencyWindowLegacyName(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, time.Hour, "hello there", "hi!")

	canonical, err := f.engine.GetContext(ctx, "u1", "recency_window", 2, "")
	require.NoError(t, err)
	legacy, err := f.engine.GetContext(ctx, "u1", "working_memory", 2, "")
	require.NoError(t, err)
	assert.Equal(t, canonical, legacy)
}

func TestGetContextGistWithProfile(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.record(t, 1, time.Duration(60-i)*time.Minute,
			fmt.Sprintf("user line %d", i), fmt.Sprintf("reply %d", i))
	}
	prof := profile.New()
	prof.BasicInfo["occupation"] = "nurse [Task 1]"
	prof.Preferences = []string{"Likes hiking [Task 1]"}
	require.NoError(t, f.profiles.SaveProfile(ctx, "u1", prof, 1))

	got, err := f.engine.GetContext(ctx, "u1", "gist", 2, "")
	require.NoError(t, err)
	assert.Contains(t, got, "What you know about the user:")
	assert.Contains(t, got, "Basic info: occupation: nurse [Task 1]")
	assert.Contains(t, got, "Preferences: Likes hiking [Task 1]")

	// Exactly the last 3 turns render verbatim.
	assert.Contains(t, got, "user line 3")
	assert.Contains(t, got, "user line 5")
	assert.NotContains(t, got, "user line 2")
}

func TestGetContextGistFallbackSummary(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.record(t, 1, time.Duration(60-i)*time.Minute,
			fmt.Sprintf("a fairly long user utterance number %d", i), fmt.Sprintf("reply %d", i))
	}

	got, err := f.engine.GetContext(ctx, "u1", "gist", 2, "")
	require.NoError(t, err)

	// No profile exists, so older turns get an ad-hoc summary.
	assert.Contains(t, got, "What you know about the user:")
	assert.Contains(t, got, "Earlier, the user said:")
	assert.Contains(t, got, "utterance number 1")
	assert.Contains(t, got, "Recent conversation:")
}

func TestGetContextGistNoOlderTurnsNoProfile(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, time.Hour, "short history", "reply")

	got, err := f.engine.GetContext(ctx, "u1", "gist", 2, "")
	require.NoError(t, err)
	assert.NotContains(t, got, "What you know about the user:")
	assert.Contains(t, got, "Recent conversation:")
}

func TestGetContextHybridSurfacesSalientMemory(t *testing.T) {
	emb := mapEmbedder{vectors: map[string][]float64{
		"I'm scared I'll fail my exam.": {1, 0, 0},
		"I'm worried about failing":     {1, 0, 0},
	}}
	f := newFixture(t, core.DefaultMemoryConfig(), emb)
	ctx := context.Background()

	f.record(t, 1, 4*time.Hour, "I'm scared I'll fail my exam.", "You have prepared well.")
	f.record(t, 1, 3*time.Hour, "The weather is nice.", "Indeed.")
	f.record(t, 1, 2*time.Hour, "I had pasta for lunch.", "Sounds tasty.")
	f.record(t, 1, time.Hour, "I watched a movie.", "Nice.")

	service := consolidation.NewService(f.store, f.profiles, emb, nil, consolidation.Config{}, nil)
	report, err := service.Consolidate(ctx, "u1", 1, core.StrategyHybrid)
	require.NoError(t, err)
	require.True(t, report.Success)

	got, err := f.engine.GetContext(ctx, "u1", "hybrid", 2, "I'm worried about failing")
	require.NoError(t, err)

	assert.Contains(t, got, "Memories that come to mind:")
	assert.Contains(t, got, "[Task 1] I'm scared I'll fail my exam.")
	assert.Contains(t, got, "(similarity 1.00)")

	// Recent turns render verbatim and are not repeated in retrieval.
	assert.Contains(t, got, "User: I watched a movie.")
	assert.NotContains(t, got, "[Task 1] I watched a movie.")
}

func TestGetContextHybridKeywordFallback(t *testing.T) {
	// No message has an embedding, so vector retrieval yields nothing.
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, 5*time.Hour, "I'm scared I'll fail my exam.", "You have prepared well.")
	f.record(t, 1, 4*time.Hour, "The weather is nice.", "Indeed.")
	f.record(t, 1, 3*time.Hour, "I had pasta for lunch.", "Sounds tasty.")
	f.record(t, 1, 2*time.Hour, "I watched a movie.", "Nice.")

	got, err := f.engine.GetContext(ctx, "u1", "hybrid", 2, "worried about my exam")
	require.NoError(t, err)

	assert.Contains(t, got, "Memories that come to mind:")
	assert.Contains(t, got, "[Task 1] I'm scared I'll fail my exam.")
}

func TestGetContextHybridNoQueryOmitsRetrieval(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, 5*time.Hour, "I'm scared I'll fail my exam.", "You have prepared well.")
	f.record(t, 1, 4*time.Hour, "The weather is nice.", "Indeed.")
	f.record(t, 1, 3*time.Hour, "I had pasta for lunch.", "Sounds tasty.")
	f.record(t, 1, 2*time.Hour, "I watched a movie.", "Nice.")

	got, err := f.engine.GetContext(ctx, "u1", "hybrid", 2, "")
	require.NoError(t, err)
	assert.NotContains(t, got, "Memories that come to mind:")
}

func TestGetContextHybridEmbedderFailureDegrades(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{err: assert.AnError})
	ctx := context.Background()

	f.record(t, 1, 5*time.Hour, "I'm scared I'll fail my exam.", "You have prepared well.")
	f.record(t, 1, 4*time.Hour, "The weather is nice.", "Indeed.")
	f.record(t, 1, 3*time.Hour, "I had pasta for lunch.", "Sounds tasty.")
	f.record(t, 1, 2*time.Hour, "I watched a movie.", "Nice.")

	// Provider failure degrades to the keyword scan, never errors.
	got, err := f.engine.GetContext(ctx, "u1", "hybrid", 2, "worried about my exam")
	require.NoError(t, err)
	assert.Contains(t, got, "[Task 1] I'm scared I'll fail my exam.")
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, core.DefaultMemoryConfig(), mapEmbedder{})
	ctx := context.Background()

	f.record(t, 1, 2*time.Hour, "hello there", "hi!")
	f.record(t, 1, time.Hour, "how are you?", "")

	stats, err := f.engine.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 2, stats.UserMessages)
	assert.Equal(t, 1, stats.AssistantMessages)
	assert.Equal(t, 2, stats.Turns)
	assert.Zero(t, stats.WithEmbedding)
	assert.Zero(t, stats.Coverage())
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := core.NewEngine(core.Dependencies{}, core.DefaultMemoryConfig())
	assert.Error(t, err)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)

	cfg := core.DefaultMemoryConfig()
	cfg.Alpha = -1

	_, err = core.NewEngine(core.Dependencies{
		Messages: store,
		Profiles: memory.NewProfileStore(),
		Embedder: mapEmbedder{},
	}, cfg)
	assert.Error(t, err)
}
