// Package profile provides the per-user trait record built by memory
// consolidation and read by the gist and hybrid context strategies.
//
// A profile groups traits into fixed categories. Every trait string carries a
// provenance tag ("[Task N]") naming the session in which it was first
// observed. Profiles are append/merge-only: traits are never overwritten, only
// unioned with new ones.
package profile

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Profile is the structured trait record for one user.
//
// BasicInfo is a key -> tagged-string map; all other categories are lists of
// tagged trait strings. The zero value is a valid empty profile.
type Profile struct {
	// BasicInfo holds identity facts (age, occupation, ...) keyed by field name.
	BasicInfo map[string]string `json:"basic_info,omitempty"`

	// Preferences holds likes, hobbies and tastes.
	Preferences []string `json:"preferences,omitempty"`

	// Constraints holds restrictions: allergies, taboos, time limits.
	Constraints []string `json:"constraints,omitempty"`

	// Goals holds near-term intentions and long-term plans.
	Goals []string `json:"goals,omitempty"`

	// Personality holds character traits (introverted, perfectionist, ...).
	Personality []string `json:"personality,omitempty"`

	// Social holds relationships: family, friends, pets.
	Social []string `json:"social,omitempty"`

	// EmotionalNeeds holds deep emotional needs the user has expressed
	// (being understood, safety, belonging).
	EmotionalNeeds []string `json:"emotional_needs,omitempty"`

	// CoreValues holds revealed core values (family first, career driven, ...).
	CoreValues []string `json:"core_values,omitempty"`

	// SignificantEvents holds high-emotional-intensity events, annotated with
	// the emotion type where known.
	SignificantEvents []string `json:"significant_events,omitempty"`

	// LastConsolidatedTaskID is the most recent task whose transcript has been
	// distilled into this profile. Zero if never consolidated.
	LastConsolidatedTaskID int `json:"last_consolidated_task_id,omitempty"`
}

// Store defines the interface for profile persistence.
//
// Get must return an empty skeleton, never an error, when no profile exists
// for the user yet.
type Store interface {
	// GetProfile retrieves the profile for a user, or an empty profile if none
	// has been consolidated yet.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// SaveProfile persists the profile and records the task it was
	// consolidated from.
	SaveProfile(ctx context.Context, userID string, p *Profile, lastTaskID int) error

	// Close closes the store and releases resources.
	Close() error
}

// New returns an empty profile skeleton.
func New() *Profile {
	return &Profile{BasicInfo: make(map[string]string)}
}

// IsEmpty reports whether the profile carries no traits at all.
func (p *Profile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.BasicInfo) == 0 &&
		len(p.Preferences) == 0 &&
		len(p.Constraints) == 0 &&
		len(p.Goals) == 0 &&
		len(p.Personality) == 0 &&
		len(p.Social) == 0 &&
		len(p.EmotionalNeeds) == 0 &&
		len(p.CoreValues) == 0 &&
		len(p.SignificantEvents) == 0
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return New()
	}
	c := &Profile{
		BasicInfo:              make(map[string]string, len(p.BasicInfo)),
		Preferences:            append([]string(nil), p.Preferences...),
		Constraints:            append([]string(nil), p.Constraints...),
		Goals:                  append([]string(nil), p.Goals...),
		Personality:            append([]string(nil), p.Personality...),
		Social:                 append([]string(nil), p.Social...),
		EmotionalNeeds:         append([]string(nil), p.EmotionalNeeds...),
		CoreValues:             append([]string(nil), p.CoreValues...),
		SignificantEvents:      append([]string(nil), p.SignificantEvents...),
		LastConsolidatedTaskID: p.LastConsolidatedTaskID,
	}
	for k, v := range p.BasicInfo {
		c.BasicInfo[k] = v
	}
	return c
}

// Merge unions an increment into the profile and returns the merged result as
// a new profile. The receiver is not modified.
//
// Map categories are merged key-wise (increment wins on key collision); list
// categories get a de-duplicated append with exact-string matching. Merging
// the same increment twice is a no-op on the second call.
func (p *Profile) Merge(inc *Profile) *Profile {
	merged := p.Clone()
	if inc == nil {
		return merged
	}

	for k, v := range inc.BasicInfo {
		merged.BasicInfo[k] = v
	}
	merged.Preferences = appendUnique(merged.Preferences, inc.Preferences)
	merged.Constraints = appendUnique(merged.Constraints, inc.Constraints)
	merged.Goals = appendUnique(merged.Goals, inc.Goals)
	merged.Personality = appendUnique(merged.Personality, inc.Personality)
	merged.Social = appendUnique(merged.Social, inc.Social)
	merged.EmotionalNeeds = appendUnique(merged.EmotionalNeeds, inc.EmotionalNeeds)
	merged.CoreValues = appendUnique(merged.CoreValues, inc.CoreValues)
	merged.SignificantEvents = appendUnique(merged.SignificantEvents, inc.SignificantEvents)

	return merged
}

// TraitCount returns the total number of atomic traits in the profile.
func (p *Profile) TraitCount() int {
	if p == nil {
		return 0
	}
	return len(p.BasicInfo) +
		len(p.Preferences) +
		len(p.Constraints) +
		len(p.Goals) +
		len(p.Personality) +
		len(p.Social) +
		len(p.EmotionalNeeds) +
		len(p.CoreValues) +
		len(p.SignificantEvents)
}

// Render formats the profile as natural-language lines suitable for inclusion
// in a prompt context block. Empty categories are omitted; an empty profile
// renders to "".
func (p *Profile) Render() string {
	if p.IsEmpty() {
		return ""
	}

	var lines []string

	if len(p.BasicInfo) > 0 {
		pairs := make([]string, 0, len(p.BasicInfo))
		for _, k := range sortedKeys(p.BasicInfo) {
			pairs = append(pairs, fmt.Sprintf("%s: %s", k, p.BasicInfo[k]))
		}
		lines = append(lines, "Basic info: "+strings.Join(pairs, ", "))
	}

	sections := []struct {
		label  string
		traits []string
	}{
		{"Preferences", p.Preferences},
		{"Constraints", p.Constraints},
		{"Goals", p.Goals},
		{"Personality", p.Personality},
		{"Social", p.Social},
		{"Emotional needs", p.EmotionalNeeds},
		{"Core values", p.CoreValues},
		{"Significant events", p.SignificantEvents},
	}
	for _, s := range sections {
		if len(s.traits) > 0 {
			lines = append(lines, s.label+": "+strings.Join(s.traits, "; "))
		}
	}

	return strings.Join(lines, "\n")
}

// taskTagPattern matches a trailing provenance tag like "[Task 3]".
var taskTagPattern = regexp.MustCompile(`\[Task \d+\]\s*$`)

// TagTrait appends a "[Task N]" provenance tag to a trait string unless it
// already carries one.
func TagTrait(trait string, taskID int) string {
	trait = strings.TrimSpace(trait)
	if trait == "" {
		return trait
	}
	if taskTagPattern.MatchString(trait) {
		return trait
	}
	return fmt.Sprintf("%s [Task %d]", trait, taskID)
}

// HasTaskTag reports whether a trait string carries a provenance tag.
func HasTaskTag(trait string) bool {
	return taskTagPattern.MatchString(trait)
}

// TagAll applies the provenance tag to every trait in the profile that is
// missing one. Used to normalize extractor output before merging.
func (p *Profile) TagAll(taskID int) {
	if p == nil {
		return
	}
	for k, v := range p.BasicInfo {
		p.BasicInfo[k] = TagTrait(v, taskID)
	}
	for _, traits := range [][]string{
		p.Preferences, p.Constraints, p.Goals, p.Personality, p.Social,
		p.EmotionalNeeds, p.CoreValues, p.SignificantEvents,
	} {
		for i, t := range traits {
			traits[i] = TagTrait(t, taskID)
		}
	}
}

// appendUnique appends the items of inc not already present in dst,
// preserving order. Matching is by exact string.
func appendUnique(dst, inc []string) []string {
	if len(inc) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst))
	for _, t := range dst {
		seen[t] = struct{}{}
	}
	for _, t := range inc {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		dst = append(dst, t)
	}
	return dst
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
