package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recollect-ai/recollect-go/pkg/llm"
	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Extractor distills a profile increment from one session's transcript
// using an LLM, with a deterministic keyword fallback when the model is
// unavailable or its output cannot be parsed.
type Extractor struct {
	// llm is the extraction model. Nil means rule-based extraction only.
	llm llm.Provider

	// customPrompt overrides the default system prompt when non-empty.
	customPrompt string
}

// NewExtractor creates an extractor. llm may be nil.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{llm: provider}
}

// NewExtractorWithPrompt creates an extractor with a custom system prompt.
func NewExtractorWithPrompt(provider llm.Provider, customPrompt string) *Extractor {
	return &Extractor{llm: provider, customPrompt: customPrompt}
}

// Extract produces a profile increment holding only traits newly observed
// in the transcript, each tagged with taskID. The existing profile is
// given to the model so already-known traits are not repeated.
//
// Returns the increment and the fallback classification: empty when the
// LLM path succeeded, CategoryAPIFailure or CategoryParsingError when the
// rule-based fallback stood in for a failing model. Running without a
// model is a supported mode, not a failure, so the classification stays
// empty there too.
func (e *Extractor) Extract(ctx context.Context, existing *profile.Profile, transcript []*storage.Message, taskID int) (*profile.Profile, string, error) {
	if e.llm == nil {
		return RuleExtract(transcript, taskID), "", nil
	}

	messages := []llm.Message{
		{Role: "system", Content: e.systemPrompt()},
		{Role: "user", Content: e.userPrompt(existing, transcript, taskID)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return RuleExtract(transcript, taskID), CategoryAPIFailure, nil
	}

	inc, err := parseIncrement(response)
	if err != nil {
		return RuleExtract(transcript, taskID), CategoryParsingError, nil
	}

	inc.TagAll(taskID)
	return inc, "", nil
}

func (e *Extractor) systemPrompt() string {
	if e.customPrompt != "" {
		return e.customPrompt
	}
	return `You are a user-profile analyst. Given a user's existing profile and the transcript of one conversation session, extract ONLY newly observed traits of the user.

Categories:
- basic_info: identity facts (age, occupation, location) as key-value pairs
- preferences: likes, hobbies, tastes
- constraints: restrictions such as allergies, taboos, time limits
- goals: intentions and plans
- personality: character traits
- social: relationships with family, friends, pets
- emotional_needs: deep emotional needs the user expressed
- core_values: revealed values
- significant_events: emotionally intense events, annotated with the emotion

Rules:
- Output a single JSON object with exactly those keys. basic_info is an object of strings; every other key is an array of strings.
- Include ONLY traits not already present in the existing profile. Omit empty categories.
- Each trait must be one short self-contained sentence.
- Use only utterances authored by the user as evidence.
- If the session reveals nothing new, output {}.
- Output the JSON object only, no prose and no code fences.`
}

func (e *Extractor) userPrompt(existing *profile.Profile, transcript []*storage.Message, taskID int) string {
	var b strings.Builder

	b.WriteString("Existing profile:\n")
	if existing == nil || existing.IsEmpty() {
		b.WriteString("(empty)\n")
	} else {
		data, err := json.Marshal(existing)
		if err != nil {
			b.WriteString("(empty)\n")
		} else {
			b.Write(data)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nSession transcript (task %d):\n", taskID)
	for _, m := range transcript {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}

	return b.String()
}

// parseIncrement parses the model response into a profile increment.
// Code-fence markers are stripped first; anything that does not decode to
// a JSON object is rejected.
func parseIncrement(response string) (*profile.Profile, error) {
	cleaned := stripCodeFences(response)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("extractor response is not a JSON object")
	}

	inc := profile.New()
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()
	if err := dec.Decode(inc); err != nil {
		// Retry leniently: models sometimes add keys outside the schema.
		inc = profile.New()
		if err2 := json.Unmarshal([]byte(cleaned), inc); err2 != nil {
			return nil, fmt.Errorf("decode increment: %w", err)
		}
	}
	return inc, nil
}

func stripCodeFences(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

// Keyword triggers for rule-based extraction.
var (
	preferenceTriggers = []string{"i like", "i love", "i prefer", "i enjoy", "my favorite"}
	constraintTriggers = []string{"allergic to", "i can't", "i cannot", "i must not", "i have to avoid"}
	goalTriggers       = []string{"i plan to", "i intend to", "i want to", "my goal", "i'm going to"}
)

// RuleExtract is the deterministic fallback extractor. It scans user
// utterances for trigger phrases and lifts the containing sentence into
// the matching category, tagged with taskID.
func RuleExtract(transcript []*storage.Message, taskID int) *profile.Profile {
	inc := profile.New()

	for _, m := range transcript {
		if !m.IsUser {
			continue
		}
		for _, sentence := range splitSentences(m.Content) {
			lower := strings.ToLower(sentence)
			switch {
			case containsAny(lower, preferenceTriggers):
				inc.Preferences = append(inc.Preferences, profile.TagTrait(sentence, taskID))
			case containsAny(lower, constraintTriggers):
				inc.Constraints = append(inc.Constraints, profile.TagTrait(sentence, taskID))
			case containsAny(lower, goalTriggers):
				inc.Goals = append(inc.Goals, profile.TagTrait(sentence, taskID))
			}
		}
	}

	return inc
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
