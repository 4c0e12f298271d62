package stream

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBackoffBase    = 2 * time.Second
	DefaultBackoffCap     = 60 * time.Second
	DefaultBackoffCeiling = 10
)

// Backoff computes reconnect delays: exponential growth from Base, capped at
// Cap, plus uniform jitter in [0, 0.25*delay). Ceiling is the number of
// consecutive failed attempts tolerated before the stream path is declared
// exhausted. The computation is deterministic given the injected rng.
type Backoff struct {
	Base    time.Duration
	Cap     time.Duration
	Ceiling int

	rng *rand.Rand
}

func NewBackoff(base, cap time.Duration, ceiling int, rng *rand.Rand) Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return Backoff{Base: base, Cap: cap, Ceiling: ceiling, rng: rng}
}

// Next returns the delay before retry number attempt (1-based):
// min(Base*2^(attempt-1), Cap) plus jitter in [0, 0.25*delay).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Cap {
			delay = b.Cap
			break
		}
	}

	jitter := time.Duration(b.rng.Float64() * 0.25 * float64(delay))
	return delay + jitter
}

// Exhausted reports whether attempt has passed the ceiling.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.Ceiling
}
