package transport

import "time"

// backoff computes reconnect delays: initial * multiplier^attempt, capped
// at max.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

func (b backoff) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.initial)
	for i := 0; i < attempt; i++ {
		d *= b.multiplier
		if time.Duration(d) >= b.max {
			return b.max
		}
	}
	if time.Duration(d) > b.max {
		return b.max
	}
	return time.Duration(d)
}
