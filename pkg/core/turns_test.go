package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recollect-ai/recollect-go/pkg/storage"
)

func msg(id string, isUser bool, content string) *storage.Message {
	return &storage.Message{ID: id, IsUser: isUser, Content: content}
}

func TestMessagesToTurnsPairsUserAndAssistant(t *testing.T) {
	turns := messagesToTurns([]*storage.Message{
		msg("1", true, "hi"),
		msg("2", false, "hello"),
		msg("3", true, "how are you?"),
		msg("4", false, "fine"),
	})

	assert.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].User.Content)
	assert.Equal(t, "hello", turns[0].Assistant.Content)
	assert.Equal(t, "how are you?", turns[1].User.Content)
	assert.Equal(t, "fine", turns[1].Assistant.Content)
}

func TestMessagesToTurnsConsecutiveUserMessages(t *testing.T) {
	turns := messagesToTurns([]*storage.Message{
		msg("1", true, "first"),
		msg("2", true, "second"),
		msg("3", false, "reply"),
	})

	assert.Len(t, turns, 2)
	assert.Nil(t, turns[0].Assistant)
	assert.Equal(t, "second", turns[1].User.Content)
	assert.Equal(t, "reply", turns[1].Assistant.Content)
}

func TestMessagesToTurnsLeadingAssistant(t *testing.T) {
	turns := messagesToTurns([]*storage.Message{
		msg("1", false, "welcome!"),
		msg("2", true, "hi"),
	})

	assert.Len(t, turns, 2)
	assert.Nil(t, turns[0].User)
	assert.Equal(t, "welcome!", turns[0].Assistant.Content)
}

func TestMessagesToTurnsSkipsMalformed(t *testing.T) {
	turns := messagesToTurns([]*storage.Message{
		nil,
		msg("1", true, "   "),
		msg("2", true, "real"),
		msg("3", false, ""),
	})

	assert.Len(t, turns, 1)
	assert.Equal(t, "real", turns[0].User.Content)
	assert.Nil(t, turns[0].Assistant)
}

func TestLastTurns(t *testing.T) {
	turns := messagesToTurns([]*storage.Message{
		msg("1", true, "a"), msg("2", false, "ra"),
		msg("3", true, "b"), msg("4", false, "rb"),
		msg("5", true, "c"), msg("6", false, "rc"),
	})

	tail := lastTurns(turns, 2)
	assert.Len(t, tail, 2)
	assert.Equal(t, "b", tail[0].User.Content)
	assert.Equal(t, "c", tail[1].User.Content)

	assert.Len(t, lastTurns(turns, 10), 3)
	assert.Nil(t, lastTurns(turns, 0))
}

func TestTurnRender(t *testing.T) {
	turn := Turn{User: msg("1", true, "hi"), Assistant: msg("2", false, "hello")}
	assert.Equal(t, "User: hi\nAssistant: hello", turn.Render())

	assert.Equal(t, "User: hi", Turn{User: msg("1", true, "hi")}.Render())
	assert.Equal(t, "Assistant: hello", Turn{Assistant: msg("2", false, "hello")}.Render())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "lon...", truncateRunes("longer text", 3))
	assert.Equal(t, "unbounded", truncateRunes("unbounded", 0))
}
