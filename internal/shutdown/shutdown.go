package shutdown

import (
	"errors"
	"log/slog"
	"os"
	"time"
)

const (
	// DefaultGracePeriod is the delay between issuing the last close request
	// and the clean exit.
	DefaultGracePeriod = 1 * time.Second

	// DefaultFailsafeTimeout bounds the whole shutdown, measured from the trigger.
	DefaultFailsafeTimeout = 3 * time.Second

	// ExitClean is the status used when the grace timer wins.
	ExitClean = 0

	// ExitForced is the status used when the failsafe timer wins.
	ExitForced = 1
)

// ErrInvalidConfig indicates the timer durations cannot produce a clean exit.
var ErrInvalidConfig = errors.New("invalid shutdown configuration")

// State is the lifecycle position of a [Coordinator].
type State int32

const (
	// StateRunning is the initial state; a trigger is accepted.
	StateRunning State = iota
	// StateShuttingDown means close requests are in flight and timers are armed.
	StateShuttingDown
	// StateTerminated means an exit timer fired.
	StateTerminated
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Closer is implemented by every resource the coordinator tears down.
//
// Close issues a close request and should return promptly; done is invoked
// exactly once when the resource has finished closing, with any error.
type Closer interface {
	Close(done func(error))
}

// CloserFunc adapts a function to [Closer].
type CloserFunc func(done func(error))

// Close implements Closer.
func (f CloserFunc) Close(done func(error)) {
	f(done)
}

// Result records one completed close request.
type Result struct {
	// Name the closer was registered with.
	Name string

	// Duration from issuing the request to its completion callback.
	Duration time.Duration

	// Err reported by the closer, if any.
	Err error
}

// Config configures a [Coordinator].
type Config struct {
	// GracePeriod is armed once the last close request is issued; when it
	// fires the process exits with [ExitClean].
	// Default: 1 second
	GracePeriod time.Duration

	// FailsafeTimeout is armed at the trigger; when it fires the process
	// exits with [ExitForced].
	// Default: 3 seconds
	FailsafeTimeout time.Duration

	// Sequential awaits each close completion before issuing the next
	// request. The default issues all requests without waiting.
	Sequential bool

	// Exit terminates the process. Default: os.Exit
	Exit func(code int)

	// OnProgress is called after each close completion.
	OnProgress func(Result)

	// Logger receives shutdown progress. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the fixed timer durations and os.Exit.
func DefaultConfig() Config {
	return Config{
		GracePeriod:     DefaultGracePeriod,
		FailsafeTimeout: DefaultFailsafeTimeout,
		Exit:            os.Exit,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.GracePeriod <= 0 || c.FailsafeTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.GracePeriod >= c.FailsafeTimeout {
		return ErrInvalidConfig
	}
	return nil
}
