// Package clock holds the sleep seam shared by the retry and pre-delay paths.
package clock

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder is a SleepFunc for tests: it records every requested delay and
// returns immediately.
type Recorder struct {
	Delays []time.Duration
}

// Sleep records d and returns ctx.Err().
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Delays = append(r.Delays, d)
	return ctx.Err()
}
