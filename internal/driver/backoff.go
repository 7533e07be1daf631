package driver

import (
	"math"
	"math/rand"
	"time"
)

// calculateBackoff returns initialDelay doubled per attempt, capped at maxDelay, with
// ±20% jitter. A non-positive initialDelay disables waiting.
func calculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if initialDelay <= 0 {
		return 0
	}

	backoff := float64(initialDelay) * math.Pow(2, float64(min(max(attempt, 0), 32)))

	if maxDelay > 0 && backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	jitter := backoff * 0.2 * (2*rand.Float64() - 1) // Random value between -20% and +20%
	backoff += jitter

	return time.Duration(backoff)
}
