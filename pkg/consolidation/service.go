package consolidation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recollect-ai/recollect-go/pkg/core"
	"github.com/recollect-ai/recollect-go/pkg/embedder"
	"github.com/recollect-ai/recollect-go/pkg/logger"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Config controls consolidation behavior.
type Config struct {
	// InitialG is the base consolidation strength for freshly vectorized
	// messages, before the salience bonus. Defaults to 1.0.
	InitialG float64

	// EncodingSalienceWeight scales how strongly emotional salience raises
	// the initial consolidation strength of a new memory. Defaults to 0.5.
	EncodingSalienceWeight float64
}

func (c Config) withDefaults() Config {
	if c.InitialG == 0 {
		c.InitialG = 1.0
	}
	if c.EncodingSalienceWeight == 0 {
		c.EncodingSalienceWeight = 0.5
	}
	return c
}

// Service runs post-session consolidation: profile distillation for gist
// and hybrid users, vectorization and salience scoring for hybrid users.
//
// Callers must serialize runs for the same (user, task) pair; the profile
// merge step is read-modify-write. Re-running a finished pair is safe and
// idempotent.
type Service struct {
	messages  storage.MessageStore
	profiles  profile.Store
	embedder  embedder.Provider
	extractor *Extractor
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a consolidation service. extractor and log may be
// nil; a nil extractor forces rule-based distillation.
func NewService(messages storage.MessageStore, profiles profile.Store, emb embedder.Provider, extractor *Extractor, cfg Config, log *slog.Logger) *Service {
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		messages:  messages,
		profiles:  profiles,
		embedder:  emb,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		logger:    log,
	}
}

// Consolidate processes one finished session. It is a no-op for the none
// and recency_window strategies. Provider failures degrade to fallbacks
// and are recorded in the report; only context cancellation and a failed
// transcript load surface as errors.
func (s *Service) Consolidate(ctx context.Context, userID string, taskID int, strategy core.Strategy) (*Report, error) {
	report := newReport(userID, taskID)
	log := s.logger.With("run_id", report.RunID, "user_id", userID, "task_id", taskID)

	if strategy != core.StrategyGist && strategy != core.StrategyHybrid {
		log.Debug("strategy needs no consolidation", "strategy", string(strategy))
		return report, nil
	}

	transcript, err := s.messages.ListForTask(ctx, userID, taskID)
	if err != nil {
		report.Success = false
		report.degrade(CategoryUnknown)
		return report, fmt.Errorf("load transcript: %w", err)
	}
	if len(transcript) == 0 {
		log.Debug("empty session, nothing to consolidate")
		return report, nil
	}

	if err := s.distill(ctx, log, report, transcript); err != nil {
		report.Success = false
		return report, err
	}

	if strategy == core.StrategyHybrid {
		if err := s.vectorize(ctx, log, report, transcript); err != nil {
			report.Success = false
			return report, err
		}
	}

	if report.ErrorCategory != "" && report.TraitsAdded == 0 && report.MessagesEmbedded == 0 {
		report.Success = false
	}

	log.Info("consolidation finished",
		"success", report.Success,
		"error_category", report.ErrorCategory,
		"traits_added", report.TraitsAdded,
		"messages_embedded", report.MessagesEmbedded,
		"messages_failed", report.MessagesFailed)
	return report, nil
}

// distill extracts a profile increment from the transcript and merges it
// into the stored profile. Extractor failure falls back to rule-based
// extraction and never aborts the run.
func (s *Service) distill(ctx context.Context, log *slog.Logger, report *Report, transcript []*storage.Message) error {
	existing, err := s.profiles.GetProfile(ctx, report.UserID)
	if err != nil {
		report.degrade(CategoryUnknown)
		log.Error("profile load failed, skipping distillation", "error", err)
		return nil
	}

	inc, category, err := s.extractor.Extract(ctx, existing, transcript, report.TaskID)
	if err != nil {
		return fmt.Errorf("extract profile increment: %w", err)
	}
	if category != "" {
		report.degrade(category)
		log.Warn("extractor degraded to rule-based fallback", "category", category)
	}

	merged := existing.Merge(inc)
	report.TraitsAdded = merged.TraitCount() - existing.TraitCount()

	if err := s.profiles.SaveProfile(ctx, report.UserID, merged, report.TaskID); err != nil {
		report.degrade(CategoryUnknown)
		log.Error("profile save failed", "error", err)
		return nil
	}

	log.Debug("profile distilled", "traits_added", report.TraitsAdded)
	return nil
}

// vectorize embeds messages that have no embedding yet and stores their
// importance, salience and initial consolidation strength. Messages
// already carrying an embedding are skipped, so re-runs cost nothing.
func (s *Service) vectorize(ctx context.Context, log *slog.Logger, report *Report, transcript []*storage.Message) error {
	var pending []*storage.Message
	for _, m := range transcript {
		if !m.HasEmbedding() {
			pending = append(pending, m)
		}
	}
	report.MessagesProcessed = len(pending)
	if len(pending) == 0 {
		log.Debug("all messages already vectorized")
		return nil
	}

	texts := make([]string, len(pending))
	for i, m := range pending {
		texts[i] = m.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.MessagesFailed = len(pending)
		report.degrade(CategoryAPIFailure)
		log.Error("batch embedding failed", "count", len(pending), "error", err)
		return nil
	}

	for i, m := range pending {
		if i >= len(vectors) || vectors[i] == nil {
			report.MessagesFailed++
			report.degrade(CategoryAPIFailure)
			continue
		}

		importance := ImportanceScore(m.Content, m.IsUser)
		salience := EmotionalSalience(m.Content, m.IsUser)
		g0 := InitialG(s.cfg.InitialG, salience, s.cfg.EncodingSalienceWeight)

		ok, err := s.messages.UpdateMetadata(ctx, m.ID, &storage.MetadataUpdate{
			Embedding:         vectors[i],
			ImportanceScore:   &importance,
			EmotionalSalience: &salience,
			ConsolidationG:    &g0,
		})
		if err != nil {
			report.MessagesFailed++
			report.degrade(CategoryUnknown)
			log.Error("metadata update failed", "message_id", m.ID, "error", err)
			continue
		}
		if !ok {
			report.MessagesFailed++
			report.degrade(CategoryUnknown)
			log.Warn("message vanished before metadata update", "message_id", m.ID)
			continue
		}
		report.MessagesEmbedded++
	}

	log.Debug("vectorization finished",
		"embedded", report.MessagesEmbedded, "failed", report.MessagesFailed)
	return nil
}
