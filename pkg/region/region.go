// Package region decides whether the current launch lies in the active
// instrumentation region.
package region

// Mode selects how the region is driven. It is fixed for the process.
type Mode int

const (
	// Interval makes the region the launch ordinals [start, end).
	Interval Mode = iota
	// Signal makes the region follow profiler start/stop events.
	Signal
)

func (m Mode) String() string {
	if m == Signal {
		return "signal"
	}
	return "interval"
}

// Controller holds the single active flag.
type Controller struct {
	mode       Mode
	start, end uint64
	active     bool
}

// New returns a Controller. start and end are ignored in Signal mode.
func New(mode Mode, start, end uint64) *Controller {
	return &Controller{mode: mode, start: start, end: end}
}

// Mode returns the controller's mode.
func (c *Controller) Mode() Mode { return c.mode }

// OnLaunch is called on every launch entry with the launch ordinal and
// returns whether the launch is active.
func (c *Controller) OnLaunch(ordinal uint64) bool {
	if c.mode == Interval {
		c.active = c.start <= ordinal && ordinal < c.end
	}
	return c.active
}

// Start handles a profiler start event.
func (c *Controller) Start() {
	if c.mode == Signal {
		c.active = true
	}
}

// Stop handles a profiler stop event.
func (c *Controller) Stop() {
	if c.mode == Signal {
		c.active = false
	}
}

// Active returns the current state without recomputing it.
func (c *Controller) Active() bool { return c.active }
