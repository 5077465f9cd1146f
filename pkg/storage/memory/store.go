// Package memory provides in-process message and profile stores.
//
// The stores are safe for concurrent use and are the default backend for
// tests and examples.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Store is an in-memory storage.MessageStore.
type Store struct {
	mu       sync.RWMutex
	node     *snowflake.Node
	messages map[string][]*storage.Message
	byID     map[string]*storage.Message
	now      func() time.Time
}

// NewStore creates an empty in-memory message store.
func NewStore() (*Store, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Store{
		node:     node,
		messages: make(map[string][]*storage.Message),
		byID:     make(map[string]*storage.Message),
		now:      time.Now,
	}, nil
}

// SetClock overrides the store's time source for new messages.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Append records a new utterance.
func (s *Store) Append(ctx context.Context, userID string, taskID int, content string, isUser bool) (*storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &storage.Message{
		ID:              s.node.Generate().String(),
		UserID:          userID,
		TaskID:          taskID,
		IsUser:          isUser,
		Content:         content,
		Timestamp:       s.now(),
		ImportanceScore: 0.5,
		ConsolidationG:  1.0,
	}
	s.messages[userID] = append(s.messages[userID], msg)
	s.byID[msg.ID] = msg

	return cloneMessage(msg), nil
}

// ListBeforeTask returns the user's messages from tasks before taskID.
func (s *Store) ListBeforeTask(ctx context.Context, userID string, taskID int) ([]*storage.Message, error) {
	return s.list(ctx, userID, func(m *storage.Message) bool {
		return m.TaskID < taskID
	})
}

// ListForTask returns one session's messages.
func (s *Store) ListForTask(ctx context.Context, userID string, taskID int) ([]*storage.Message, error) {
	return s.list(ctx, userID, func(m *storage.Message) bool {
		return m.TaskID == taskID
	})
}

// ListAll returns every message of the user.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*storage.Message, error) {
	return s.list(ctx, userID, func(*storage.Message) bool { return true })
}

// ListWithEmbeddings returns the user's vectorized messages, excluding
// the given task. A negative excludeTaskID excludes nothing.
func (s *Store) ListWithEmbeddings(ctx context.Context, userID string, excludeTaskID int) ([]*storage.Message, error) {
	return s.list(ctx, userID, func(m *storage.Message) bool {
		if !m.HasEmbedding() {
			return false
		}
		return excludeTaskID < 0 || m.TaskID != excludeTaskID
	})
}

func (s *Store) list(ctx context.Context, userID string, keep func(*storage.Message) bool) ([]*storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Message
	for _, m := range s.messages[userID] {
		if keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TaskID != out[j].TaskID {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// UpdateMetadata applies a partial update to one message. Updates are
// atomic per message under the store lock.
func (s *Store) UpdateMetadata(ctx context.Context, messageID string, update *storage.MetadataUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if update == nil || update.IsZero() {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return false, nil
	}

	if update.Embedding != nil {
		msg.Embedding = append([]float64(nil), update.Embedding...)
	}
	if update.ImportanceScore != nil {
		msg.ImportanceScore = *update.ImportanceScore
	}
	if update.EmotionalSalience != nil {
		msg.EmotionalSalience = *update.EmotionalSalience
	}
	if update.ConsolidationG != nil {
		msg.ConsolidationG = *update.ConsolidationG
	}
	if update.RecallCount != nil {
		msg.RecallCount = *update.RecallCount
	}
	if update.LastRecallAt != nil {
		t := *update.LastRecallAt
		msg.LastRecallAt = &t
	}
	return true, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneMessage(m *storage.Message) *storage.Message {
	out := *m
	if m.Embedding != nil {
		out.Embedding = append([]float64(nil), m.Embedding...)
	}
	if m.LastRecallAt != nil {
		t := *m.LastRecallAt
		out.LastRecallAt = &t
	}
	return &out
}

// ProfileStore is an in-memory profile.Store.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
}

// NewProfileStore creates an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*profile.Profile)}
}

// GetProfile returns the user's profile, or an empty skeleton.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.profiles[userID]; ok {
		return p.Clone(), nil
	}
	return profile.New(), nil
}

// SaveProfile persists the profile and the task it was consolidated from.
func (s *ProfileStore) SaveProfile(ctx context.Context, userID string, p *profile.Profile, lastTaskID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := p.Clone()
	stored.LastConsolidatedTaskID = lastTaskID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = stored
	return nil
}

// Close is a no-op.
func (s *ProfileStore) Close() error {
	return nil
}
