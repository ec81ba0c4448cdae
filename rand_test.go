package crange

import (
	"math"
	"testing"
)

func TestRandomLevelDistribution(t *testing.T) {
	numSamples := 1000000
	counts := make(map[int]int)
	rng := newRNGWithSeed(0x123456789abcdef)
	for range numSamples {
		level := rng.RandomLevel(MaxLevel)
		counts[level]++
	}

	// With P = 1/2, the number of ranges at level i+1 should be roughly half
	// the number at level i.
	for i := 1; i < MaxLevel; i++ {
		count1 := counts[i]
		if count1 == 0 {
			continue
		}

		count2 := counts[i+1]

		ratio := float64(count2) / float64(count1)

		// count2 is Binomial(count1, P); allow five standard deviations.
		stdDev := math.Sqrt(P * (1 - P) / float64(count1))
		tolerance := 5 * stdDev

		if math.Abs(ratio-P) > tolerance {
			t.Errorf("Expected ratio between level %d and %d to be around %.2f ± %.4f, but got %.2f", i, i+1, P, tolerance, ratio)
		}
	}
}

func TestRandomLevelRespectsCap(t *testing.T) {
	rng := newRNGWithSeed(42)
	for range 100000 {
		if lvl := rng.RandomLevel(3); lvl < 1 || lvl > 3 {
			t.Fatalf("level %d outside [1, 3]", lvl)
		}
	}
}

func TestZeroSeedFallsBack(t *testing.T) {
	rng := newRNGWithSeed(0)
	if rng.nextRandom64() == 0 {
		t.Fatalf("expected a non-zero stream from the fallback seed")
	}
}
