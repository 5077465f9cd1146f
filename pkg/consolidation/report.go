// Package consolidation implements the post-session job that distills
// user profiles from transcripts and vectorizes messages for later
// retrieval.
package consolidation

import "github.com/google/uuid"

// Error categories attached to a failed or degraded consolidation run.
const (
	// CategoryAPIFailure marks a provider call that failed at the network
	// or auth layer.
	CategoryAPIFailure = "api_failure"

	// CategoryParsingError marks an extractor response that could not be
	// parsed into a profile increment.
	CategoryParsingError = "parsing_error"

	// CategoryUnknown marks any other failure.
	CategoryUnknown = "unknown"
)

// Report summarizes one consolidation run. A run is identified by RunID so
// an operator can correlate log lines and re-run exactly one (user, task)
// pair.
type Report struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// UserID and TaskID identify the consolidated session.
	UserID string `json:"user_id"`
	TaskID int    `json:"task_id"`

	// Success is false only when the run produced no useful output at all.
	// Sub-job degradation (extractor fallback, partial embedding failure)
	// leaves Success true.
	Success bool `json:"success"`

	// ErrorCategory classifies the most severe failure observed, empty
	// when the run was clean.
	ErrorCategory string `json:"error_category,omitempty"`

	// TraitsAdded is the number of new profile traits merged in.
	TraitsAdded int `json:"traits_added"`

	// MessagesProcessed counts messages considered for vectorization,
	// MessagesEmbedded those that received an embedding this run, and
	// MessagesFailed those whose embedding attempt failed.
	MessagesProcessed int `json:"messages_processed"`
	MessagesEmbedded  int `json:"messages_embedded"`
	MessagesFailed    int `json:"messages_failed"`
}

func newReport(userID string, taskID int) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		UserID:  userID,
		TaskID:  taskID,
		Success: true,
	}
}

// degrade records an error category, keeping the most severe one seen.
// Parsing errors outrank unknown; API failures outrank both.
func (r *Report) degrade(category string) {
	switch r.ErrorCategory {
	case CategoryAPIFailure:
		return
	case CategoryParsingError:
		if category != CategoryAPIFailure {
			return
		}
	}
	r.ErrorCategory = category
}
