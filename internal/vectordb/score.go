package vectordb

import "math"

// DistanceFromSimilarity converts the engine's cosine similarity into a
// non-negative cosine distance.
func DistanceFromSimilarity(similarity float32) float64 {
	d := 1 - float64(similarity)
	if d < 0 {
		return 0
	}
	return d
}

// Score maps a cosine distance to a similarity score in [0, 1]:
// clamp(1 - sqrt(distance), 0, 1). Negative distances score 1 and NaN
// scores 0.
func Score(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	if distance <= 0 {
		return 1
	}
	s := 1 - math.Sqrt(distance)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
