package shutdown

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Coordinator runs the shutdown sequence exactly once per process.
type Coordinator struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	closers  []registration
	results  []Result
	started  time.Time
	grace    *time.Timer
	failsafe *time.Timer

	state    atomic.Int32
	exitCode atomic.Int32
	exitOnce sync.Once
	done     chan struct{}
}

// registration holds a registered closer with its name.
type registration struct {
	name   string
	closer Closer
}

// New creates a [Coordinator] in [StateRunning].
//
// Zero durations and a nil Exit fall back to [DefaultConfig]. Returns
// [ErrInvalidConfig] if the grace period is not shorter than the failsafe.
func New(config Config) (*Coordinator, error) {
	defaults := DefaultConfig()
	if config.GracePeriod == 0 {
		config.GracePeriod = defaults.GracePeriod
	}
	if config.FailsafeTimeout == 0 {
		config.FailsafeTimeout = defaults.FailsafeTimeout
	}
	if config.Exit == nil {
		config.Exit = defaults.Exit
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
	c.exitCode.Store(-1)
	return c, nil
}

// Register appends a closer and reports whether it was accepted. Closers are
// issued in registration order. Registrations after the trigger are rejected
// and the caller owns the resource.
func (c *Coordinator) Register(name string, closer Closer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateRunning {
		c.logger.Warn("closer registered after shutdown began", "name", name)
		return false
	}
	c.closers = append(c.closers, registration{name: name, closer: closer})
	return true
}

// RegisterFunc registers a function as a closer.
func (c *Coordinator) RegisterFunc(name string, fn func(done func(error))) bool {
	return c.Register(name, CloserFunc(fn))
}

// Trigger starts the shutdown sequence.
//
// Only the first call has any effect and returns true. The failsafe timer is
// armed before Trigger returns; close requests are issued from a separate
// goroutine so a blocking closer cannot stall the caller.
func (c *Coordinator) Trigger(reason string) bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		c.logger.Debug("shutdown already in progress", "reason", reason)
		return false
	}

	c.mu.Lock()
	c.started = time.Now()
	c.failsafe = time.AfterFunc(c.config.FailsafeTimeout, func() {
		c.fire("failsafe", ExitForced)
	})
	closers := slices.Clone(c.closers)
	c.mu.Unlock()

	c.logger.Info("shutdown triggered",
		"reason", reason,
		"closers", len(closers),
		"sequential", c.config.Sequential,
		"grace_period", c.config.GracePeriod.String(),
		"failsafe_timeout", c.config.FailsafeTimeout.String(),
	)

	go c.issue(closers)
	return true
}

// issue sends every close request in order, then arms the grace timer.
func (c *Coordinator) issue(closers []registration) {
	for _, r := range closers {
		if c.State() == StateTerminated {
			return
		}

		c.logger.Debug("close requested", "name", r.name)
		start := time.Now()

		if !c.config.Sequential {
			r.closer.Close(c.completion(r.name, start, nil))
			continue
		}

		completed := make(chan struct{})
		r.closer.Close(c.completion(r.name, start, func() { close(completed) }))
		select {
		case <-completed:
		case <-c.done:
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateTerminated {
		return
	}
	c.grace = time.AfterFunc(c.config.GracePeriod, func() {
		c.fire("grace", ExitClean)
	})
}

// completion returns the done callback handed to a closer. Repeated calls
// after the first are dropped.
func (c *Coordinator) completion(name string, start time.Time, next func()) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			res := Result{Name: name, Duration: time.Since(start), Err: err}

			c.mu.Lock()
			c.results = append(c.results, res)
			c.mu.Unlock()

			if err != nil {
				c.logger.Error("close failed",
					"name", name,
					"duration_ms", res.Duration.Milliseconds(),
					"error", err,
				)
			} else {
				c.logger.Info("closed",
					"name", name,
					"duration_ms", res.Duration.Milliseconds(),
				)
			}

			if c.config.OnProgress != nil {
				c.config.OnProgress(res)
			}
			if next != nil {
				next()
			}
		})
	}
}

// fire is the action of both timers. The first caller stops the other timer
// and exits; later callers do nothing.
func (c *Coordinator) fire(timer string, code int) {
	c.exitOnce.Do(func() {
		c.mu.Lock()
		if c.grace != nil {
			c.grace.Stop()
		}
		if c.failsafe != nil {
			c.failsafe.Stop()
		}
		elapsed := time.Since(c.started)
		c.state.Store(int32(StateTerminated))
		c.mu.Unlock()

		c.exitCode.Store(int32(code))
		c.logger.Info("exit",
			"timer", timer,
			"code", code,
			"elapsed_ms", elapsed.Milliseconds(),
		)

		c.config.Exit(code)
		close(c.done)
	})
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done returns a channel that is closed after the exit function returns.
// With os.Exit it is never closed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// ExitCode returns the status passed to the exit function, or -1 before
// a timer has fired.
func (c *Coordinator) ExitCode() int {
	return int(c.exitCode.Load())
}

// Results returns the close completions observed so far, in completion order.
func (c *Coordinator) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.results)
}
