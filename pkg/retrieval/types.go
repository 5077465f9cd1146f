package retrieval

import "github.com/recollect-ai/recollect-go/pkg/storage"

// Result is a single ranked retrieval hit.
type Result struct {
	// Message is the matched stored message.
	Message *storage.Message

	// Similarity is the normalized similarity in [0, 1].
	Similarity float64

	// Recency is the normalized recency in [0, 1]. Only set in weighted
	// mode.
	Recency float64

	// Importance is the stored importance score of the message.
	Importance float64

	// FinalScore is the value the result was ranked by: the weighted
	// combination in weighted mode, the recall probability in forgetting
	// curve mode.
	FinalScore float64

	// RecallProbability is the forgetting curve recall probability. Only
	// set in forgetting curve mode.
	RecallProbability float64

	// Elapsed is the time since the message was last recalled (or
	// encoded), in the engine's time unit. Only set in forgetting curve
	// mode.
	Elapsed float64
}
