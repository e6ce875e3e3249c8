package reconnect

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBackoffFormula checks invariant 8.6: nextDelay(k) stays within
// k*200ms of minDelay*2^k below the maxDelay saturation point, and
// equals maxDelay at/after it.
func TestBackoffFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const minDelay, maxDelay = int64(1000), int64(5000)

	saturatesAt := int(math.Ceil(math.Log2(float64(maxDelay) / float64(minDelay))))

	for k := 0; k < saturatesAt; k++ {
		got := nextDelay(k, minDelay, maxDelay, rng)
		base := minDelay * int64(math.Pow(2, float64(k)))
		diff := got - base
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqualf(t, diff, int64(k)*200, "k=%d got=%d base=%d", k, got, base)
		require.LessOrEqual(t, got, maxDelay)
	}

	for k := saturatesAt; k < saturatesAt+3; k++ {
		require.Equal(t, maxDelay, nextDelay(k, minDelay, maxDelay, rng))
	}
}

func TestBackoffZeroMinDelayFirstAttemptIsImmediate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	require.EqualValues(t, 0, nextDelay(0, 0, 0, rng))
}
