package consolidation

import "strings"

var emotionWords = []string{
	"scared", "afraid", "worried", "anxious", "nervous",
	"love", "hate", "excited", "thrilled",
	"sad", "angry", "upset", "frustrated", "stressed",
	"depressed", "lonely", "proud", "ashamed", "grateful",
}

var disclosureMarkers = []string{
	"i'm ", "i am ", "i feel", "i felt", "i've been", "my ",
}

var valueWords = []string{
	"believe", "value", "matters to me", "important to me", "principle",
}

var decisionWords = []string{
	"decide", "decided", "plan to", "planning", "goal",
	"want to", "going to", "intend",
}

var requestMarkers = []string{
	"please", "can you", "could you", "help me",
}

// ImportanceScore rates how much a message should weigh in weighted
// retrieval. Rule-based: a 0.3 floor plus bonuses for length, emotional
// vocabulary, self-disclosure, questions or requests, decision or goal
// talk, and user authorship. Clamped to [0, 1].
func ImportanceScore(content string, isUser bool) float64 {
	text := strings.ToLower(content)

	score := 0.3

	length := float64(len(content)) / 200
	if length > 1 {
		length = 1
	}
	score += 0.2 * length

	if containsAny(text, emotionWords) {
		score += 0.15
	}
	if containsAny(text, disclosureMarkers) {
		score += 0.15
	}
	if strings.Contains(text, "?") || containsAny(text, requestMarkers) {
		score += 0.1
	}
	if containsAny(text, decisionWords) {
		score += 0.1
	}
	if isUser {
		score += 0.1
	}

	return clamp01(score)
}

// EmotionalSalience rates the emotional weight of a user message at
// encoding time. Assistant messages always score 0. Clamped to [0, 1].
func EmotionalSalience(content string, isUser bool) float64 {
	if !isUser {
		return 0
	}
	text := strings.ToLower(content)

	var score float64
	if containsAny(text, emotionWords) {
		score += 0.3
	}
	if containsAny(text, disclosureMarkers) {
		score += 0.2
	}
	if containsAny(text, valueWords) {
		score += 0.1
	}
	if strings.Count(content, "!") >= 2 {
		score += 0.1
	}
	if strings.Count(content, "?") >= 2 {
		score += 0.05
	}

	return clamp01(score)
}

// InitialG seeds the consolidation strength of a freshly vectorized
// message. Emotionally salient moments start more resistant to decay.
func InitialG(base, salience, salienceWeight float64) float64 {
	return base + salienceWeight*salience
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
