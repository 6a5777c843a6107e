package fetcher

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Window is an inclusive range a courtesy delay is drawn from.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer spaces out requests to a remote site with randomized courtesy delays.
type Pacer struct {
	sleep SleepFunc

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPacer(sleep SleepFunc, seed int64) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{
		sleep: sleep,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// Delay draws a duration from w.
func (p *Pacer) Delay(w Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	p.mu.Lock()
	n := p.rnd.Int63n(int64(w.Max-w.Min) + 1)
	p.mu.Unlock()
	return w.Min + time.Duration(n)
}

// Wait sleeps for a duration drawn from w and returns what it waited.
func (p *Pacer) Wait(ctx context.Context, w Window) (time.Duration, error) {
	d := p.Delay(w)
	return d, p.sleep(ctx, d)
}

// Pause sleeps for exactly d.
func (p *Pacer) Pause(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
