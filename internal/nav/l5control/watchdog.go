package l5control

import (
	"time"

	"github.com/banshee-data/ecoship/internal/timeutil"
)

// DefaultWatchdogTimeout is the silence after which the vessel is stopped.
const DefaultWatchdogTimeout = 2 * time.Second

// Watchdog supervises the control loop. Kick records a successfully
// completed tick; Check reports a safe-stop command once more than the
// timeout has passed since the last kick. The watchdog is armed at
// creation, so a loop that never completes a tick is also caught.
type Watchdog struct {
	clock   timeutil.Clock
	timeout time.Duration
	stop    Command
	last    time.Time
	tripped bool
}

// NewWatchdog creates an armed watchdog.
func NewWatchdog(clock timeutil.Clock, timeout time.Duration, safeStop Command) *Watchdog {
	return &Watchdog{clock: clock, timeout: timeout, stop: safeStop, last: clock.Now()}
}

// Kick records a completed tick and re-arms the watchdog.
func (w *Watchdog) Kick() {
	w.last = w.clock.Now()
	w.tripped = false
}

// LastKick returns the time of the last completed tick.
func (w *Watchdog) LastKick() time.Time { return w.last }

// Expired reports whether the timeout has elapsed since the last kick.
func (w *Watchdog) Expired() bool {
	return w.clock.Since(w.last) > w.timeout
}

// Check returns the safe-stop command and true when expired. The caller
// must deliver the command regardless of state machine output. newlyTripped
// is true only on the first expired check after a kick.
func (w *Watchdog) Check() (cmd Command, expired, newlyTripped bool) {
	if !w.Expired() {
		return Command{}, false, false
	}
	newlyTripped = !w.tripped
	w.tripped = true
	return w.stop, true, newlyTripped
}

// Tripped reports whether the last Check found the watchdog expired.
func (w *Watchdog) Tripped() bool { return w.tripped }
