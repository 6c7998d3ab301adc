package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time so catch-up and cooldowns are testable.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Millis returns c's current time as epoch milliseconds, the unit saves use.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// Fake is a manually advanced clock, safe for use from the engine loop and a test goroutine.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
