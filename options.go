package devserve

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// serverConfig holds mutable state during Server construction.
type serverConfig struct {
	httpHost        string
	httpPort        int
	controlHost     string
	controlPort     int
	root            fs.FS
	index           string
	gracePeriod     time.Duration
	failsafeTimeout time.Duration
	realtime        RealtimeChannel
	noRealtime      bool
	sequential      bool
	logger          *slog.Logger
	exit            func(code int)
}

// Option is a function that configures a [Server] during construction.
//
// Options return an error if validation fails.
type Option func(*serverConfig) error

// validPort reports whether port is usable; 0 asks the OS for a free port.
func validPort(port int) bool {
	return port >= 0 && port <= 65535
}

// WithHTTPPort sets the TCP port of the HTTP listener. Defaults to 8088.
//
// Port 0 binds an ephemeral port; see [Server.HTTPAddr].
func WithHTTPPort(port int) Option {
	return func(cfg *serverConfig) error {
		if !validPort(port) {
			return errors.New("http port must be between 0 and 65535")
		}
		cfg.httpPort = port
		return nil
	}
}

// WithHTTPHost sets the interface the HTTP listener binds to. Defaults to
// all interfaces.
func WithHTTPHost(host string) Option {
	return func(cfg *serverConfig) error {
		cfg.httpHost = host
		return nil
	}
}

// WithControlPort sets the UDP port of the control listener. Defaults to 8089.
//
// Port 0 binds an ephemeral port; see [Server.ControlAddr].
func WithControlPort(port int) Option {
	return func(cfg *serverConfig) error {
		if !validPort(port) {
			return errors.New("control port must be between 0 and 65535")
		}
		cfg.controlPort = port
		return nil
	}
}

// WithControlHost sets the interface the control listener binds to.
//
// Defaults to all interfaces, which lets any host on the local network send
// "shutdown". Use "127.0.0.1" to accept commands from this machine only.
func WithControlHost(host string) Option {
	return func(cfg *serverConfig) error {
		cfg.controlHost = host
		return nil
	}
}

// WithRoot sets the document root filesystem. Defaults to the "public"
// directory relative to the working directory.
//
// Returns an error if fsys is nil.
func WithRoot(fsys fs.FS) Option {
	return func(cfg *serverConfig) error {
		if fsys == nil {
			return errors.New("root filesystem cannot be nil")
		}
		cfg.root = fsys
		return nil
	}
}

// WithRootDir is [WithRoot] over a directory on disk.
func WithRootDir(dir string) Option {
	return func(cfg *serverConfig) error {
		if dir == "" {
			return errors.New("root directory cannot be empty")
		}
		cfg.root = os.DirFS(dir)
		return nil
	}
}

// WithIndex sets the document served for "/". Defaults to "index.html".
func WithIndex(name string) Option {
	return func(cfg *serverConfig) error {
		if name == "" {
			return errors.New("index cannot be empty")
		}
		cfg.index = name
		return nil
	}
}

// WithGracePeriod sets the delay between issuing the last close request and
// the clean exit (status 0). Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithGracePeriod(d time.Duration) Option {
	return func(cfg *serverConfig) error {
		if d <= 0 {
			return errors.New("grace period must be positive")
		}
		cfg.gracePeriod = d
		return nil
	}
}

// WithFailsafeTimeout sets the hard bound on shutdown, after which the
// process exits with status 1. Defaults to 3 seconds.
//
// Returns an error if the duration is zero or negative.
func WithFailsafeTimeout(d time.Duration) Option {
	return func(cfg *serverConfig) error {
		if d <= 0 {
			return errors.New("failsafe timeout must be positive")
		}
		cfg.failsafeTimeout = d
		return nil
	}
}

// WithRealtime replaces the default WebSocket hub with another real-time
// channel. The channel is attached to the HTTP listener at startup and closed
// second during shutdown.
//
// Returns an error if ch is nil.
func WithRealtime(ch RealtimeChannel) Option {
	return func(cfg *serverConfig) error {
		if ch == nil {
			return errors.New("realtime channel cannot be nil")
		}
		cfg.realtime = ch
		cfg.noRealtime = false
		return nil
	}
}

// WithoutRealtime disables the real-time channel entirely.
func WithoutRealtime() Option {
	return func(cfg *serverConfig) error {
		cfg.realtime = nil
		cfg.noRealtime = true
		return nil
	}
}

// WithSequentialClose makes shutdown await each close completion before
// issuing the next one. By default all close requests are issued without
// waiting.
func WithSequentialClose() Option {
	return func(cfg *serverConfig) error {
		cfg.sequential = true
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serverConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithExitFunc replaces os.Exit as the action of the shutdown timers.
//
// With a function that returns, [Server.Start] returns after it is called.
// Returns an error if fn is nil.
func WithExitFunc(fn func(code int)) Option {
	return func(cfg *serverConfig) error {
		if fn == nil {
			return errors.New("exit function cannot be nil")
		}
		cfg.exit = fn
		return nil
	}
}
