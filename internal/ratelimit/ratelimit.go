package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer blocks between units of work.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Delay sleeps a fixed duration, optionally stretched by a random jitter, on
// every Wait call.
type Delay struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDelay waits between minDelay and maxDelay. Pass equal values for a fixed delay.
func NewDelay(minDelay, maxDelay time.Duration) *Delay {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Delay{
		minDelay: minDelay,
		maxDelay: maxDelay,
		sleep:    Sleep,
	}
}

func (d *Delay) Wait(ctx context.Context) error {
	d.mu.Lock()
	delay := d.calculateDelay()
	d.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	return d.sleep(ctx, delay)
}

func (d *Delay) SetDelay(min, max time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if max < min {
		max = min
	}
	d.minDelay = min
	d.maxDelay = max
}

func (d *Delay) calculateDelay() time.Duration {
	if d.minDelay == d.maxDelay {
		return d.minDelay
	}

	delta := d.maxDelay - d.minDelay
	jitter := time.Duration(rand.Int63n(int64(delta)))
	return d.minDelay + jitter
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay never waits. Useful for tests and one-off runs.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}
