package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/recollect-ai/recollect-go/pkg/embedder"
	"github.com/recollect-ai/recollect-go/pkg/llm"
	"github.com/recollect-ai/recollect-go/pkg/logger"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/retrieval"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Block labels used when composing the context string.
const (
	labelProfile   = "What you know about the user:"
	labelRecent    = "Recent conversation:"
	labelRetrieved = "Memories that come to mind:"
)

// Dependencies holds the collaborators an Engine is built from.
//
// Messages, Profiles and Embedder are required. LLM is optional and only
// used for the ad-hoc gist summary fallback. A nil Logger discards log
// output; a nil Now uses wall-clock time.
type Dependencies struct {
	Messages storage.MessageStore
	Profiles profile.Store
	Embedder embedder.Provider
	LLM      llm.Provider
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine builds the memory context string for a conversation turn. It is
// safe for concurrent use across users; all mutable state lives in the
// stores.
type Engine struct {
	messages  storage.MessageStore
	profiles  profile.Store
	llm       llm.Provider
	retriever *retrieval.Engine
	cfg       MemoryConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a context engine. The configuration is validated
// eagerly so bad policy parameters fail here, not per request.
func NewEngine(deps Dependencies, cfg MemoryConfig) (*Engine, error) {
	if deps.Messages == nil || deps.Profiles == nil || deps.Embedder == nil {
		return nil, NewEngineError("NewEngine", fmt.Errorf("%w: messages, profiles and embedder are required", ErrInvalidConfig))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	retriever := retrieval.NewEngine(deps.Messages, deps.Embedder, retrieval.Config{
		TopK:                 cfg.RetrievalTopK,
		Alpha:                cfg.Alpha,
		Beta:                 cfg.Beta,
		Gamma:                cfg.Gamma,
		UseForgettingCurve:   cfg.ForgettingCurve.Enabled,
		RecallThreshold:      cfg.ForgettingCurve.RecallThreshold,
		TimeUnit:             cfg.ForgettingCurve.TimeUnit,
		UpdateOnRecall:       cfg.ForgettingCurve.UpdateOnRecall,
		EmotionalBonusWeight: cfg.ForgettingCurve.EmotionalBonusWeight,
	}, log)
	retriever.SetClock(now)

	return &Engine{
		messages:  deps.Messages,
		profiles:  deps.Profiles,
		llm:       deps.LLM,
		retriever: retriever,
		cfg:       cfg,
		logger:    log,
		now:       now,
	}, nil
}

// Record appends one utterance to the user's history.
func (e *Engine) Record(ctx context.Context, userID string, taskID int, content string, isUser bool) (*storage.Message, error) {
	msg, err := e.messages.Append(ctx, userID, taskID, content, isUser)
	if err != nil {
		return nil, NewEngineError("Record", err)
	}
	return msg, nil
}

// GetContext builds the memory context for (userID, strategy) at the
// start of currentTaskID. query anchors hybrid retrieval and may be
// empty. Unknown strategy names, empty histories, missing profiles and
// provider failures all yield shorter or empty output, never an error;
// only store failures surface.
func (e *Engine) GetContext(ctx context.Context, userID, strategy string, currentTaskID int, query string) (string, error) {
	switch NormalizeStrategy(strategy) {
	case StrategyNone:
		return "", nil
	case StrategyRecencyWindow:
		return e.recencyWindowContext(ctx, userID, currentTaskID)
	case StrategyGist:
		return e.gistContext(ctx, userID, currentTaskID)
	case StrategyHybrid:
		return e.hybridContext(ctx, userID, currentTaskID, query)
	default:
		e.logger.Warn("unknown strategy, returning empty context", "strategy", strategy, "user_id", userID)
		return "", nil
	}
}

// recencyWindowContext renders the last WindowTurns turns verbatim,
// oldest first. Pure FIFO, no scoring.
func (e *Engine) recencyWindowContext(ctx context.Context, userID string, currentTaskID int) (string, error) {
	turns, err := e.historyTurns(ctx, userID, currentTaskID)
	if err != nil {
		return "", err
	}
	window := lastTurns(turns, e.cfg.WindowTurns)
	if len(window) == 0 {
		return "", nil
	}
	return labelRecent + "\n" + renderTurns(window), nil
}

// gistContext renders the distilled profile (or an ad-hoc summary of the
// older turns when no profile exists yet) followed by the last
// RecentTurns turns verbatim.
func (e *Engine) gistContext(ctx context.Context, userID string, currentTaskID int) (string, error) {
	turns, err := e.historyTurns(ctx, userID, currentTaskID)
	if err != nil {
		return "", err
	}
	recent := lastTurns(turns, e.cfg.RecentTurns)
	older := turns[:len(turns)-len(recent)]

	var blocks []string
	if gist := e.gistBlock(ctx, userID, older); gist != "" {
		blocks = append(blocks, gist)
	}
	if len(recent) > 0 {
		blocks = append(blocks, labelRecent+"\n"+renderTurns(recent))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// hybridContext composes profile, recent verbatim turns and a ranked
// retrieval block. Retrieval problems degrade to a keyword scan and then
// to omitting the block, silently.
func (e *Engine) hybridContext(ctx context.Context, userID string, currentTaskID int, query string) (string, error) {
	turns, err := e.historyTurns(ctx, userID, currentTaskID)
	if err != nil {
		return "", err
	}
	recent := lastTurns(turns, e.cfg.RecentTurns)
	older := turns[:len(turns)-len(recent)]

	var blocks []string
	if gist := e.gistBlock(ctx, userID, older); gist != "" {
		blocks = append(blocks, gist)
	}
	if len(recent) > 0 {
		blocks = append(blocks, labelRecent+"\n"+renderTurns(recent))
	}
	if retrieved := e.retrievalBlock(ctx, userID, currentTaskID, query, recent, older); retrieved != "" {
		blocks = append(blocks, retrieved)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (e *Engine) historyTurns(ctx context.Context, userID string, currentTaskID int) ([]Turn, error) {
	messages, err := e.messages.ListBeforeTask(ctx, userID, currentTaskID)
	if err != nil {
		return nil, NewEngineError("GetContext", err)
	}
	return messagesToTurns(messages), nil
}

// gistBlock renders the stored profile, or summarizes the older turns
// when no profile has been consolidated yet.
func (e *Engine) gistBlock(ctx context.Context, userID string, older []Turn) string {
	prof, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		e.logger.Error("profile load failed, omitting profile block", "user_id", userID, "error", err)
		return ""
	}
	if prof != nil && !prof.IsEmpty() {
		return labelProfile + "\n" + prof.Render()
	}
	if len(older) == 0 {
		return ""
	}

	summary := e.summarizeTurns(ctx, older)
	if summary == "" {
		return ""
	}
	return labelProfile + "\n" + summary
}

// summarizeTurns produces an ad-hoc gist of older turns: an LLM summary
// when a model is wired, a sampled list of the user's longer utterances
// otherwise. Output is capped at GistMaxChars.
func (e *Engine) summarizeTurns(ctx context.Context, older []Turn) string {
	if e.llm != nil {
		prompt := fmt.Sprintf(
			"Summarize what the following conversation reveals about the user in at most %d characters. Output the summary only.\n\n%s",
			e.cfg.GistMaxChars, renderTurns(older))
		summary, err := e.llm.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(summary) != "" {
			return truncateRunes(strings.TrimSpace(summary), e.cfg.GistMaxChars)
		}
		e.logger.Warn("gist summary generation failed, using heuristic summary", "error", err)
	}

	var utterances []string
	for _, t := range older {
		if t.User != nil && len([]rune(t.User.Content)) > 15 {
			utterances = append(utterances, t.User.Content)
		}
	}
	if len(utterances) == 0 {
		return ""
	}
	if len(utterances) > 5 {
		head := utterances[:3]
		tail := utterances[len(utterances)-2:]
		utterances = append(append([]string{}, head...), tail...)
	}
	return truncateRunes("Earlier, the user said: "+strings.Join(utterances, " / "), e.cfg.GistMaxChars)
}

// retrievalBlock ranks older history against the query. Messages already
// shown in the recent verbatim block never reappear here.
func (e *Engine) retrievalBlock(ctx context.Context, userID string, currentTaskID int, query string, recent []Turn, older []Turn) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	shown := shownMessageIDs(recent)

	results, err := e.retriever.Search(ctx, userID, query, currentTaskID)
	if err != nil {
		e.logger.Warn("vector retrieval failed, trying keyword scan", "user_id", userID, "error", err)
		results = nil
	}

	var lines []string
	for _, r := range results {
		if shown[r.Message.ID] {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [Task %d] %s (similarity %.2f)", r.Message.TaskID, r.Message.Content, r.Similarity))
	}

	if len(lines) == 0 {
		lines = e.keywordLines(query, older, shown)
	}
	if len(lines) == 0 {
		return ""
	}
	return labelRetrieved + "\n" + strings.Join(lines, "\n")
}

// keywordLines is the degraded retrieval path: score older user messages
// by keyword overlap with the query plus positional recency.
func (e *Engine) keywordLines(query string, older []Turn, shown map[string]bool) []string {
	keywords := queryKeywords(query)
	if len(keywords) == 0 {
		return nil
	}

	var candidates []*storage.Message
	for _, t := range older {
		if t.User != nil && !shown[t.User.ID] {
			candidates = append(candidates, t.User)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		msg   *storage.Message
		score float64
	}
	var hits []scored
	for i, m := range candidates {
		content := strings.ToLower(m.Content)
		matched := 0
		for _, k := range keywords {
			if strings.Contains(content, k) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		position := 1.0
		if len(candidates) > 1 {
			position = float64(i) / float64(len(candidates)-1)
		}
		score := 0.5*float64(matched)/float64(len(keywords)) + 0.3*position
		hits = append(hits, scored{msg: m, score: score})
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > e.cfg.RetrievalTopK {
		hits = hits[:e.cfg.RetrievalTopK]
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("- [Task %d] %s", h.msg.TaskID, h.msg.Content))
	}
	return lines
}

func shownMessageIDs(turns []Turn) map[string]bool {
	shown := make(map[string]bool)
	for _, t := range turns {
		if t.User != nil {
			shown[t.User.ID] = true
		}
		if t.Assistant != nil {
			shown[t.Assistant.ID] = true
		}
	}
	return shown
}

func queryKeywords(query string) []string {
	var keywords []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,!?;:'\"")
		if len(f) > 2 {
			keywords = append(keywords, f)
		}
	}
	return keywords
}

// Stats describes one user's stored history.
type Stats struct {
	storage.Stats

	// Turns is the paired turn count.
	Turns int
}

// GetStats summarizes the user's history and embedding coverage.
func (e *Engine) GetStats(ctx context.Context, userID string) (Stats, error) {
	messages, err := e.messages.ListAll(ctx, userID)
	if err != nil {
		return Stats{}, NewEngineError("GetStats", err)
	}
	return Stats{
		Stats: storage.CollectStats(messages),
		Turns: len(messagesToTurns(messages)),
	}, nil
}
