package core

import (
	"fmt"
	"strings"

	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Turn is one user utterance plus the following assistant reply. Either
// side may be missing when the transcript is uneven.
type Turn struct {
	User      *storage.Message
	Assistant *storage.Message
}

// Render formats the turn as dialogue lines.
func (t Turn) Render() string {
	var lines []string
	if t.User != nil {
		lines = append(lines, "User: "+t.User.Content)
	}
	if t.Assistant != nil {
		lines = append(lines, "Assistant: "+t.Assistant.Content)
	}
	return strings.Join(lines, "\n")
}

// messagesToTurns pairs a time-ordered message list into turns. A user
// message opens a turn; the next assistant message closes it. An
// assistant message with no open turn becomes a reply-only turn.
// Messages with empty content are skipped.
func messagesToTurns(messages []*storage.Message) []Turn {
	var turns []Turn
	for _, m := range messages {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.IsUser {
			turns = append(turns, Turn{User: m})
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Assistant == nil {
			turns[n-1].Assistant = m
		} else {
			turns = append(turns, Turn{Assistant: m})
		}
	}
	return turns
}

// lastTurns returns the trailing n turns, oldest first.
func lastTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

// renderTurns joins turns oldest-first under no header.
func renderTurns(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if s := t.Render(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// truncateRunes cuts s to at most max runes, appending an ellipsis when
// anything was dropped.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:max]))
}
