// Package storage provides interfaces and types for message persistence.
//
// It defines the MessageStore interface that all storage implementations must
// satisfy. A message is one utterance of a conversation; its content is
// immutable once appended, while retrieval/consolidation metadata (embedding,
// importance, consolidation state, salience) is updated in place through
// partial metadata updates.
package storage

import (
	"context"
	"time"
)

// Message represents one utterance stored in the message log.
type Message struct {
	// ID is the unique identifier of the message.
	ID string

	// UserID identifies the user who owns this message.
	UserID string

	// TaskID is the session/phase ordinal the message belongs to.
	TaskID int

	// IsUser is true for user utterances, false for agent replies.
	IsUser bool

	// Content is the text content. Immutable after Append.
	Content string

	// Timestamp is when the message was recorded. Immutable after Append.
	Timestamp time.Time

	// Embedding is the vector embedding, or nil before vectorization.
	Embedding []float64

	// ImportanceScore is the heuristic importance in [0,1]. Defaults to 0.5
	// until consolidation scores the message.
	ImportanceScore float64

	// ConsolidationG is the consolidation coefficient g. Larger values decay
	// more slowly. Never decreases after creation.
	ConsolidationG float64

	// RecallCount is how many times dynamic retrieval has surfaced this
	// message.
	RecallCount int

	// LastRecallAt is when the message was last recalled (nil if never).
	LastRecallAt *time.Time

	// EmotionalSalience is the emotional/self-disclosure salience in [0,1].
	// Always 0 for agent replies.
	EmotionalSalience float64
}

// HasEmbedding reports whether the message has been vectorized.
func (m *Message) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// MetadataUpdate describes a partial update to a message's mutable metadata.
//
// Nil fields are left untouched, so callers never re-send unrelated fields.
// Stores must apply the update as a single-row transactional write.
type MetadataUpdate struct {
	// Embedding sets the embedding vector when non-nil.
	Embedding []float64

	// ImportanceScore sets the importance score when non-nil.
	ImportanceScore *float64

	// EmotionalSalience sets the emotional salience when non-nil.
	EmotionalSalience *float64

	// ConsolidationG sets the consolidation coefficient when non-nil.
	ConsolidationG *float64

	// RecallCount sets the recall counter when non-nil.
	RecallCount *int

	// LastRecallAt sets the last-recall timestamp when non-nil.
	LastRecallAt *time.Time
}

// IsZero reports whether the update carries no changes.
func (u *MetadataUpdate) IsZero() bool {
	return u == nil ||
		(u.Embedding == nil && u.ImportanceScore == nil &&
			u.EmotionalSalience == nil && u.ConsolidationG == nil &&
			u.RecallCount == nil && u.LastRecallAt == nil)
}

// MessageStore defines the interface for message persistence backends.
//
// All list operations return messages ordered by (task, timestamp) ascending,
// with ties broken by insertion order.
type MessageStore interface {
	// Append records a new utterance and returns the stored message.
	// New messages start with importance 0.5, consolidation g 1.0, no
	// embedding and zero salience.
	Append(ctx context.Context, userID string, taskID int, content string, isUser bool) (*Message, error)

	// ListBeforeTask returns all of a user's messages from tasks strictly
	// before taskID.
	ListBeforeTask(ctx context.Context, userID string, taskID int) ([]*Message, error)

	// ListForTask returns all messages of one (user, task) session.
	ListForTask(ctx context.Context, userID string, taskID int) ([]*Message, error)

	// ListAll returns every message of the user.
	ListAll(ctx context.Context, userID string) ([]*Message, error)

	// ListWithEmbeddings returns the user's vectorized messages, excluding the
	// given task. Pass a negative excludeTaskID to exclude nothing.
	ListWithEmbeddings(ctx context.Context, userID string, excludeTaskID int) ([]*Message, error)

	// UpdateMetadata applies a partial metadata update to one message.
	// Returns false (with a nil error) when the message does not exist.
	UpdateMetadata(ctx context.Context, messageID string, update *MetadataUpdate) (bool, error)

	// Close closes the store and releases resources.
	Close() error
}

// Stats summarizes a user's message log and its embedding coverage.
type Stats struct {
	// TotalMessages is the number of stored messages.
	TotalMessages int

	// UserMessages is the number of user-authored messages.
	UserMessages int

	// AssistantMessages is the number of agent replies.
	AssistantMessages int

	// WithEmbedding is the number of vectorized messages.
	WithEmbedding int
}

// Coverage returns the vectorized fraction of the log in [0,1].
func (s Stats) Coverage() float64 {
	if s.TotalMessages == 0 {
		return 0
	}
	return float64(s.WithEmbedding) / float64(s.TotalMessages)
}

// CollectStats derives Stats from a user's full message list.
func CollectStats(messages []*Message) Stats {
	var s Stats
	s.TotalMessages = len(messages)
	for _, m := range messages {
		if m.IsUser {
			s.UserMessages++
		} else {
			s.AssistantMessages++
		}
		if m.HasEmbedding() {
			s.WithEmbedding++
		}
	}
	return s
}
