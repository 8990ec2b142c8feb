package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the retry delay for attempt N (1-based). With jitter the
// delay is scaled by a factor in [0.5, 1.5).
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	multiplier := math.Max(b.Multiplier, 1.0)
	exp := 0
	if attempt > 1 {
		exp = attempt - 1
	}
	delay := float64(b.InitialDelay) * math.Pow(multiplier, float64(exp))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
