package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/recollect-ai/recollect-go/pkg/embedder"
	"github.com/recollect-ai/recollect-go/pkg/logger"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Config controls ranking behavior.
type Config struct {
	// TopK is the number of results to return. Defaults to 3.
	TopK int

	// Alpha, Beta and Gamma weight recency, similarity and importance in
	// weighted mode. Defaults: 0.3, 0.5, 0.2.
	Alpha float64
	Beta  float64
	Gamma float64

	// UseForgettingCurve enables recall-probability ranking.
	UseForgettingCurve bool

	// RecallThreshold is the minimum recall probability for a memory to
	// qualify in forgetting curve mode. Defaults to 0.86.
	RecallThreshold float64

	// TimeUnit converts wall-clock elapsed time into curve time. Defaults
	// to 24h, so elapsed time is measured in days.
	TimeUnit time.Duration

	// UpdateOnRecall enables strengthening qualifying memories after a
	// forgetting curve search. Defaults to true.
	UpdateOnRecall bool

	// EmotionalBonusWeight scales the salience bonus added to the recall
	// probability. Defaults to 0.1.
	EmotionalBonusWeight float64
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.Alpha == 0 && c.Beta == 0 && c.Gamma == 0 {
		c.Alpha, c.Beta, c.Gamma = 0.3, 0.5, 0.2
	}
	if c.RecallThreshold == 0 {
		c.RecallThreshold = 0.86
	}
	if c.TimeUnit <= 0 {
		c.TimeUnit = 24 * time.Hour
	}
	if c.EmotionalBonusWeight == 0 {
		c.EmotionalBonusWeight = 0.1
	}
	return c
}

// Engine ranks a user's embedded messages against a query.
type Engine struct {
	store    storage.MessageStore
	embedder embedder.Provider
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a retrieval engine. A nil logger discards log output.
func NewEngine(store storage.MessageStore, emb embedder.Provider, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		store:    store,
		embedder: emb,
		cfg:      cfg.withDefaults(),
		logger:   log,
		now:      time.Now,
	}
}

// SetClock overrides the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Search embeds the query and ranks the user's stored messages. Messages
// belonging to excludeTaskID are skipped; pass a negative value to search
// everything.
//
// In forgetting curve mode, a search that leaves no memory above the
// recall threshold falls back to weighted scoring over the same
// candidates.
func (e *Engine) Search(ctx context.Context, userID, query string, excludeTaskID int) ([]Result, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.store.ListWithEmbeddings(ctx, userID, excludeTaskID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if e.cfg.UseForgettingCurve {
		results, err := e.rankByRecall(ctx, queryVec, candidates)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
		e.logger.Debug("no memories above recall threshold, falling back to weighted scoring",
			"user_id", userID, "candidates", len(candidates))
	}

	return e.rankWeighted(queryVec, candidates), nil
}

// SearchWeighted ranks candidates by the weighted combination of recency,
// similarity and importance regardless of the configured mode.
func (e *Engine) SearchWeighted(ctx context.Context, userID, query string, excludeTaskID int) ([]Result, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := e.store.ListWithEmbeddings(ctx, userID, excludeTaskID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return e.rankWeighted(queryVec, candidates), nil
}

func (e *Engine) rankWeighted(queryVec []float64, candidates []*storage.Message) []Result {
	if len(candidates) == 0 {
		return nil
	}

	now := e.now()
	ages := make([]float64, len(candidates))
	for i, m := range candidates {
		ages[i] = now.Sub(m.Timestamp).Seconds()
	}
	recency := normalizeRecency(ages)

	results := make([]Result, 0, len(candidates))
	for i, m := range candidates {
		sim := NormalizeSimilarity(CosineSimilarity(queryVec, m.Embedding))
		score := e.cfg.Alpha*recency[i] + e.cfg.Beta*sim + e.cfg.Gamma*m.ImportanceScore
		results = append(results, Result{
			Message:    m,
			Similarity: sim,
			Recency:    recency[i],
			Importance: m.ImportanceScore,
			FinalScore: score,
		})
	}

	sortResults(results)
	return truncate(results, e.cfg.TopK)
}

// rankByRecall scores candidates by recall probability, keeps those above
// the threshold and strengthens them. All probabilities are computed from
// the state the candidates had before any strengthening, so the ranking
// within one search is order-independent.
func (e *Engine) rankByRecall(ctx context.Context, queryVec []float64, candidates []*storage.Message) ([]Result, error) {
	now := e.now()

	results := make([]Result, 0, len(candidates))
	for _, m := range candidates {
		sim := NormalizeSimilarity(CosineSimilarity(queryVec, m.Embedding))
		elapsed := e.elapsedUnits(now, m)
		p := RecallProbability(sim, elapsed, m.ConsolidationG, m.EmotionalSalience, e.cfg.EmotionalBonusWeight)
		if p < e.cfg.RecallThreshold {
			continue
		}
		results = append(results, Result{
			Message:           m,
			Similarity:        sim,
			Importance:        m.ImportanceScore,
			FinalScore:        p,
			RecallProbability: p,
			Elapsed:           elapsed,
		})
	}

	sortResults(results)
	results = truncate(results, e.cfg.TopK)

	if e.cfg.UpdateOnRecall {
		for _, r := range results {
			if err := e.strengthen(ctx, now, r); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

func (e *Engine) strengthen(ctx context.Context, now time.Time, r Result) error {
	g := r.Message.ConsolidationG + Strengthen(r.Elapsed)
	count := r.Message.RecallCount + 1
	recalledAt := now

	ok, err := e.store.UpdateMetadata(ctx, r.Message.ID, &storage.MetadataUpdate{
		ConsolidationG: &g,
		RecallCount:    &count,
		LastRecallAt:   &recalledAt,
	})
	if err != nil {
		return fmt.Errorf("strengthen memory %s: %w", r.Message.ID, err)
	}
	if !ok {
		e.logger.Warn("memory vanished before strengthening", "message_id", r.Message.ID)
	}
	return nil
}

// elapsedUnits returns the time since the message was last recalled, or
// since it was encoded when it has never been recalled, in curve time
// units. Never negative.
func (e *Engine) elapsedUnits(now time.Time, m *storage.Message) float64 {
	since := m.Timestamp
	if m.LastRecallAt != nil {
		since = *m.LastRecallAt
	}
	elapsed := now.Sub(since)
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(elapsed) / float64(e.cfg.TimeUnit)
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
}

func truncate(results []Result, k int) []Result {
	if len(results) > k {
		return results[:k]
	}
	return results
}
