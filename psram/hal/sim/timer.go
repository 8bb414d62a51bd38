package sim

import (
	"sync"
	"time"
)

// Timer records requested delays instead of waiting.
type Timer struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Delay implements hal.Timer.
func (t *Timer) Delay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
}

// Delays returns every delay requested so far.
func (t *Timer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

// Total returns the sum of all delays.
func (t *Timer) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum time.Duration
	for _, d := range t.delays {
		sum += d
	}
	return sum
}
