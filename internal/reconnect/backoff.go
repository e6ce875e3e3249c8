package reconnect

import (
	"math"
	"math/rand"
)

// nextDelay implements spec section 4.6's backoff formula:
// nextDelay(attempts) = min(maxDelay, minDelay*2^attempts + jitter),
// jitter uniform on [0, attempts*200ms]. rng is injected so tests (and
// S6-style scenarios, per spec section 9: "the randomized jitter must be
// seedable") are deterministic.
func nextDelay(attempts int, minDelay, maxDelay int64, rng *rand.Rand) int64 {
	base := minDelay * int64(math.Pow(2, float64(attempts)))
	jitterRange := int64(attempts) * 200
	var jitter int64
	if jitterRange > 0 {
		jitter = rng.Int63n(jitterRange + 1)
	}
	delay := base + jitter
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
