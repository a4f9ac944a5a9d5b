package libdte

import (
	"math/rand"
)

// sampleK returns k distinct entries of keys in random order (all of them
// when k >= len(keys)). keys itself is left untouched.
func sampleK(rng *rand.Rand, keys []string, k int) []string {
	n := len(keys)
	if k > n {
		k = n
	}
	picked := append([]string(nil), keys...)
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:k]
}

// samplePair returns two distinct entries of keys; len(keys) must be >= 2.
func samplePair(rng *rand.Rand, keys []string) (string, string) {
	pair := sampleK(rng, keys, 2)
	return pair[0], pair[1]
}

// weightedPick samples one choice proportionally to weights. Weights must
// be positive and len(weights) == len(choices) > 0.
func weightedPick(rng *rand.Rand, choices []string, weights []float64) string {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return choices[i]
		}
	}
	return choices[len(choices)-1] // float roundoff
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
