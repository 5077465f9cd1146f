package core

// Strategy selects the memory policy used to build context for a user.
type Strategy string

const (
	// StrategyNone carries no memory across turns.
	StrategyNone Strategy = "none"

	// StrategyRecencyWindow renders the last few turns verbatim, FIFO.
	StrategyRecencyWindow Strategy = "recency_window"

	// StrategyGist renders a distilled profile plus a short verbatim tail.
	StrategyGist Strategy = "gist"

	// StrategyHybrid renders profile, verbatim tail and ranked retrieval.
	StrategyHybrid Strategy = "hybrid"
)

// legacyStrategies maps retired strategy labels to the canonical set.
var legacyStrategies = map[string]Strategy{
	"no_memory":      StrategyNone,
	"sensory_memory": StrategyNone,
	"short_memory":   StrategyRecencyWindow,
	"working_memory": StrategyRecencyWindow,
	"medium_memory":  StrategyGist,
	"gist_memory":    StrategyGist,
	"long_memory":    StrategyHybrid,
	"hybrid_memory":  StrategyHybrid,
}

// NormalizeStrategy maps a strategy name, canonical or legacy, to the
// canonical enum. Unknown names normalize to the empty Strategy.
func NormalizeStrategy(name string) Strategy {
	switch Strategy(name) {
	case StrategyNone, StrategyRecencyWindow, StrategyGist, StrategyHybrid:
		return Strategy(name)
	}
	if s, ok := legacyStrategies[name]; ok {
		return s
	}
	return Strategy("")
}

// Valid reports whether s is one of the four canonical strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyNone, StrategyRecencyWindow, StrategyGist, StrategyHybrid:
		return true
	}
	return false
}
