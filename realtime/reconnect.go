package realtime

import (
	"math/rand"
	"time"
)

// ReconnectPolicy decides whether and when a transport consumer retries
// after a genuine transport-layer failure. It is injected into the websocket
// delivery loop; nothing else in the system is allowed to trigger reconnect
// behavior (in particular, never log contents).
type ReconnectPolicy interface {
	// NextDelay returns the wait before retry attempt n (0-based) and
	// whether a retry should happen at all.
	NextDelay(attempt int) (time.Duration, bool)
}

// ExponentialBackoff doubles the delay per attempt up to Max, with jitter,
// and gives up after MaxAttempts.
type ExponentialBackoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultReconnectPolicy() ExponentialBackoff {
	return ExponentialBackoff{
		Base:        250 * time.Millisecond,
		Max:         10 * time.Second,
		MaxAttempts: 5,
	}
}

func (p ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	delay := p.Base << uint(attempt)
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	// Full jitter keeps reconnect storms from synchronizing.
	delay = time.Duration(rand.Int63n(int64(delay)) + int64(p.Base)/2)
	if delay > p.Max {
		delay = p.Max
	}
	return delay, true
}

// NoRetry fails fast. Used in tests and as a fault-isolation stub.
type NoRetry struct{}

func (NoRetry) NextDelay(int) (time.Duration, bool) { return 0, false }
