package mocks

import (
	"sync"
	"time"

	"github.com/tokenlens/mint-indexer/internal/adapter"
)

// Ticker is a manually driven adapter.Ticker
type Ticker struct {
	C chan time.Time
}

func (t *Ticker) Chan() <-chan time.Time { return t.C }
func (t *Ticker) Stop()                  {}

// Clock is a manually driven adapter.Clock. Tickers and After channels are
// fired from the test; Sleep returns immediately and records the duration.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	Ticker  *Ticker
	AfterCh chan time.Time
	Slept   []time.Duration
}

var _ adapter.Clock = (*Clock)(nil)

// NewClock creates a manual clock anchored at now
func NewClock(now time.Time) *Clock {
	return &Clock{
		now:     now,
		Ticker:  &Ticker{C: make(chan time.Time)},
		AfterCh: make(chan time.Time),
	}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slept = append(c.Slept, d)
}

func (c *Clock) After(d time.Duration) <-chan time.Time {
	return c.AfterCh
}

func (c *Clock) NewTicker(d time.Duration) adapter.Ticker {
	return c.Ticker
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick fires one ticker tick
func (c *Clock) Tick() {
	c.Ticker.C <- c.Now()
}

// FireAfter releases one pending After wait
func (c *Clock) FireAfter() {
	c.AfterCh <- c.Now()
}
