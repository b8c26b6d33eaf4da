package transport

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns how long to wait before dial attempt n+1 after attempt n
// failed. Attempts are 1-based. With jitter the delay is scaled into
// [0.5, 1.5) of its nominal value; a nil rng uses the midpoint 0.5.
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	if n <= 1 {
		return b.InitialDelay
	}
	mult := math.Max(b.Multiplier, 1.0)
	d := float64(b.InitialDelay) * math.Pow(mult, float64(n-1))
	if b.MaxDelay > 0 {
		d = math.Min(d, float64(b.MaxDelay))
	}
	if b.Jitter {
		scale := 0.5
		if rng != nil {
			scale += rng.Float64()
		}
		d *= scale
	}
	return time.Duration(d)
}
