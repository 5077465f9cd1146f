package consolidation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollect-ai/recollect-go/pkg/consolidation"
	"github.com/recollect-ai/recollect-go/pkg/llm"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// scriptedLLM replies with a fixed response (or error) to every call.
type scriptedLLM struct {
	response string
	err      error
}

func (s scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.GenerateWithMessages(ctx, nil, opts...)
}

func (s scriptedLLM) GenerateWithMessages(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s scriptedLLM) Close() error { return nil }

func transcript() []*storage.Message {
	return []*storage.Message{
		{ID: "1", IsUser: true, Content: "I like rainy mornings. I'm allergic to cats."},
		{ID: "2", IsUser: false, Content: "Noted! Cats are off the table."},
		{ID: "3", IsUser: true, Content: "I plan to adopt a dog next year."},
	}
}

func TestExtractParsesModelResponse(t *testing.T) {
	model := scriptedLLM{response: `{
		"preferences": ["Likes rainy mornings"],
		"constraints": ["Allergic to cats"],
		"goals": ["Plans to adopt a dog next year"]
	}`}

	inc, category, err := consolidation.NewExtractor(model).Extract(context.Background(), profile.New(), transcript(), 3)
	require.NoError(t, err)
	assert.Empty(t, category)

	// Untagged model traits get the provenance tag.
	assert.Equal(t, []string{"Likes rainy mornings [Task 3]"}, inc.Preferences)
	assert.Equal(t, []string{"Allergic to cats [Task 3]"}, inc.Constraints)
	assert.Equal(t, []string{"Plans to adopt a dog next year [Task 3]"}, inc.Goals)
}

func TestExtractStripsCodeFences(t *testing.T) {
	model := scriptedLLM{response: "```json\n{\"preferences\": [\"Likes rainy mornings\"]}\n```"}

	inc, category, err := consolidation.NewExtractor(model).Extract(context.Background(), profile.New(), transcript(), 1)
	require.NoError(t, err)
	assert.Empty(t, category)
	assert.Equal(t, []string{"Likes rainy mornings [Task 1]"}, inc.Preferences)
}

func TestExtractRejectsNonObjectResponse(t *testing.T) {
	for _, response := range []string{
		`["just", "a", "list"]`,
		`Sure! The user likes rainy mornings.`,
		``,
	} {
		model := scriptedLLM{response: response}
		inc, category, err := consolidation.NewExtractor(model).Extract(context.Background(), profile.New(), transcript(), 2)
		require.NoError(t, err)
		assert.Equal(t, consolidation.CategoryParsingError, category)

		// The rule-based fallback still produced tagged traits.
		assert.NotEmpty(t, inc.Preferences)
		assert.NotEmpty(t, inc.Constraints)
		assert.NotEmpty(t, inc.Goals)
	}
}

func TestExtractFallsBackOnModelError(t *testing.T) {
	model := scriptedLLM{err: errors.New("rate limited")}

	inc, category, err := consolidation.NewExtractor(model).Extract(context.Background(), profile.New(), transcript(), 2)
	require.NoError(t, err)
	assert.Equal(t, consolidation.CategoryAPIFailure, category)
	assert.NotEmpty(t, inc.Constraints)
}

func TestExtractWithoutModel(t *testing.T) {
	inc, category, err := consolidation.NewExtractor(nil).Extract(context.Background(), profile.New(), transcript(), 2)
	require.NoError(t, err)

	// Rule-based-only operation is a configured mode, not a degradation.
	assert.Empty(t, category)
	assert.NotEmpty(t, inc.Goals)
}

func TestRuleExtract(t *testing.T) {
	inc := consolidation.RuleExtract(transcript(), 7)

	assert.Equal(t, []string{"I like rainy mornings [Task 7]"}, inc.Preferences)
	assert.Equal(t, []string{"I'm allergic to cats [Task 7]"}, inc.Constraints)
	assert.Equal(t, []string{"I plan to adopt a dog next year [Task 7]"}, inc.Goals)
}

func TestRuleExtractIgnoresAssistantMessages(t *testing.T) {
	inc := consolidation.RuleExtract([]*storage.Message{
		{ID: "1", IsUser: false, Content: "I like suggesting things."},
	}, 1)
	assert.True(t, inc.IsEmpty())
}
