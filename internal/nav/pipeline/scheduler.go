package pipeline

import (
	"context"

	"github.com/banshee-data/ecoship/internal/nav"
)

// Run drives the loop at the configured tick interval until ctx is done.
// Before each tick the watchdog is checked; after each tick the loop
// sleeps until the next deadline. A tick that overruns its slot starts the
// next one immediately and re-anchors the schedule. On exit the vessel is
// brought to a safe stop.
func (c *Core) Run(ctx context.Context) error {
	interval := c.params.TickInterval
	next := c.clock.Now()
	overruns := 0

	nav.Opsf("navigation loop started: tick %v, sensor timeout %v, watchdog %v",
		interval, c.params.SensorTimeout, c.params.WatchdogTimeout)
	defer func() {
		c.SafeStop()
		nav.Opsf("navigation loop stopped after %d ticks (%d overruns)", c.seq, overruns)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.CheckWatchdog()
		c.Tick(ctx)

		next = next.Add(interval)
		wait := next.Sub(c.clock.Now())
		if wait <= 0 {
			overruns++
			nav.Diagf("tick %d overran its slot by %v", c.seq, -wait)
			next = c.clock.Now()
			continue
		}

		timer := c.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
		}
	}
}
