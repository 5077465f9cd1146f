// Package retrieval ranks stored conversation messages against a query
// embedding. It supports two modes: weighted scoring over recency,
// similarity and importance, and an Ebbinghaus-style forgetting curve that
// models recall probability and strengthens memories on access.
package retrieval

import "math"

// minStability is the floor applied to consolidation strength before it is
// used as a divisor in the decay exponent.
const minStability = 1e-6

// CosineSimilarity computes the cosine similarity between two vectors.
//
// Returns 0 when the vectors differ in length or either has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeSimilarity maps a cosine similarity from [-1, 1] to [0, 1].
func NormalizeSimilarity(cos float64) float64 {
	return (cos + 1) / 2
}

// normalizeRecency rescales message ages to [0, 1] where the newest
// candidate gets 1 and the oldest gets 0. When all candidates share the
// same timestamp every message gets 1.
//
// ages holds elapsed time per candidate in arbitrary but uniform units.
func normalizeRecency(ages []float64) []float64 {
	out := make([]float64, len(ages))
	if len(ages) == 0 {
		return out
	}

	minAge, maxAge := ages[0], ages[0]
	for _, a := range ages[1:] {
		if a < minAge {
			minAge = a
		}
		if a > maxAge {
			maxAge = a
		}
	}

	span := maxAge - minAge
	if span == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	for i, a := range ages {
		out[i] = (maxAge - a) / span
	}
	return out
}

// RecallProbability computes the probability of recalling a memory under
// the forgetting curve.
//
// sim01 is the normalized similarity in [0, 1], elapsed the time since the
// memory was last recalled (or encoded) in time units, g the consolidation
// strength and salience the emotional salience recorded at encoding.
// bonusWeight scales the salience contribution.
//
// The base probability follows 1 - exp(-sim01 * exp(-elapsed/g)), rescaled
// so that a perfect, fresh match yields exactly 1.
func RecallProbability(sim01, elapsed, g, salience, bonusWeight float64) float64 {
	if g < minStability {
		g = minStability
	}

	decay := math.Exp(-elapsed / g)
	base := (1 - math.Exp(-sim01*decay)) / (1 - math.Exp(-1))
	if base < 0 {
		base = 0
	}
	if base > 1 {
		base = 1
	}

	p := base + salience*bonusWeight
	if p > 1 {
		p = 1
	}
	return p
}

// Strengthen returns the consolidation increment earned by a successful
// recall after elapsed time units. The increment follows
// (1 - e^-t) / (1 + e^-t): near zero for immediate re-access and
// approaching 1 for recalls spaced far apart, so spaced recall
// consolidates harder than cramming.
func Strengthen(elapsed float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	e := math.Exp(-elapsed)
	return (1 - e) / (1 + e)
}
