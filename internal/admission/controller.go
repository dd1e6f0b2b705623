// Package admission implements request admission control for the telemetry
// ingestion path.
//
// Budgets are enforced over fixed, wall-clock-aligned windows: each window
// starts at a multiple of the configured duration, every accepted request
// consumes one unit, and counters reset when the next window begins. Two
// budgets apply to every request: a per-device budget and a global ceiling
// shared by all devices. A request is admitted only if both have room, and
// a request denied by either consumes neither.
package admission

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the caller should wait before retrying,
	// rounded up to a whole second with a minimum of one second. Zero
	// when Allowed.
	RetryAfter time.Duration

	// Scope names which budget denied the request ("device" or "global").
	// Empty when Allowed.
	Scope string
}

// Scope values reported in denial decisions.
const (
	ScopeDevice = "device"
	ScopeGlobal = "global"
)

// Controller enforces fixed-window admission budgets.
//
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	window       time.Duration
	deviceBudget int
	globalBudget int

	windowStart time.Time
	perDevice   map[string]int
	globalCount int

	now func() time.Time
}

// NewController creates a controller with the given window and budgets.
// The global budget is a ceiling across all devices; it must be at least
// the per-device budget (enforced by config validation upstream).
func NewController(window time.Duration, deviceBudget, globalBudget int) *Controller {
	return &Controller{
		window:       window,
		deviceBudget: deviceBudget,
		globalBudget: globalBudget,
		perDevice:    make(map[string]int),
		now:          time.Now,
	}
}

// Admit checks whether a request from the given device may proceed in the
// current window, consuming one unit from both budgets if so.
func (c *Controller) Admit(deviceUUID string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.rollWindowLocked(now)

	if c.globalCount >= c.globalBudget {
		return Decision{
			Allowed:    false,
			RetryAfter: c.retryAfterLocked(now),
			Scope:      ScopeGlobal,
		}
	}

	if c.perDevice[deviceUUID] >= c.deviceBudget {
		return Decision{
			Allowed:    false,
			RetryAfter: c.retryAfterLocked(now),
			Scope:      ScopeDevice,
		}
	}

	c.perDevice[deviceUUID]++
	c.globalCount++
	return Decision{Allowed: true}
}

// Usage returns the units consumed so far in the current window for a
// device and globally. Exposed for monitoring.
func (c *Controller) Usage(deviceUUID string) (device, global int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollWindowLocked(c.now())
	return c.perDevice[deviceUUID], c.globalCount
}

// rollWindowLocked resets the counters if the clock has moved into a new
// window. Windows are aligned to multiples of the window duration so that
// all instances reading the same clock agree on boundaries.
func (c *Controller) rollWindowLocked(now time.Time) {
	start := now.Truncate(c.window)
	if !start.Equal(c.windowStart) {
		c.windowStart = start
		c.globalCount = 0
		c.perDevice = make(map[string]int)
	}
}

// retryAfterLocked returns the time remaining in the current window,
// rounded up to a whole second, never less than one second.
func (c *Controller) retryAfterLocked(now time.Time) time.Duration {
	remaining := c.windowStart.Add(c.window).Sub(now)
	rounded := remaining.Truncate(time.Second)
	if rounded < remaining {
		rounded += time.Second
	}
	if rounded < time.Second {
		rounded = time.Second
	}
	return rounded
}
