// internal/store/runner.go
package store

import (
	"context"
	"errors"
	"time"
)

// RunConfig controls repeated cycles.
type RunConfig struct {
	Interval time.Duration // pause between cycles; 0 runs them back to back
	Count    int           // cycles to run; 0 means until ctx is done
}

// Run executes cycles on the calling goroutine, reporting each one.
// The first cycle starts immediately. No overlap. No retries: the first
// failed cycle ends the run and its error is returned.
func (c *Controller) Run(ctx context.Context, rc RunConfig, transform Transform, report func(CycleResult)) error {
	if rc.Count < 0 {
		return errors.New("store: run: count must be >= 0")
	}
	if rc.Count == 0 && rc.Interval <= 0 {
		return errors.New("store: run: unbounded run needs an interval")
	}

	var tick <-chan time.Time
	if rc.Interval > 0 {
		ticker := time.NewTicker(rc.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 1; rc.Count == 0 || n <= rc.Count; n++ {
		if ctx.Err() != nil {
			return nil
		}
		if n > 1 && tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}

		res := CycleResult{Cycle: n, At: time.Now()}
		res.Before, res.After, res.Err = c.Cycle(transform)
		if report != nil {
			report(res)
		}
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}
