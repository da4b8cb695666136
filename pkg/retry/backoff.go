package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// exponential builds the backoff schedule shared by Handler and Policy.
// A zero maxElapsed never gives up on time alone; without jitter the delays
// follow expDelay exactly.
func exponential(initial, max time.Duration, multiplier float64, maxElapsed time.Duration, jitter bool) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = max
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = maxElapsed
	if !jitter {
		exp.RandomizationFactor = 0
	}
	exp.Reset()
	return exp
}

// expDelay is min(initial*multiplier^attempt, max).
func expDelay(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	d := float64(initial) * math.Pow(multiplier, float64(attempt))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}
