package devserve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jpalmerr/devserve/internal/control"
	"github.com/jpalmerr/devserve/internal/realtime"
	"github.com/jpalmerr/devserve/internal/server"
	"github.com/jpalmerr/devserve/internal/shutdown"
	"github.com/jpalmerr/devserve/internal/static"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultHTTPPort is the TCP port of the HTTP listener.
	DefaultHTTPPort = 8088
	// DefaultControlPort is the UDP port of the control listener.
	DefaultControlPort = 8089
	// DefaultRoot is the document root directory.
	DefaultRoot = "public"
	// DefaultIndex is served for "/".
	DefaultIndex = static.DefaultIndex
	// DefaultGracePeriod is the delay before the clean exit.
	DefaultGracePeriod = shutdown.DefaultGracePeriod
	// DefaultFailsafeTimeout is the hard bound on shutdown.
	DefaultFailsafeTimeout = shutdown.DefaultFailsafeTimeout
)

var (
	// ErrAlreadyStarted is returned by a second call to [Server.Start].
	ErrAlreadyStarted = errors.New("server already started")
	// ErrShutdown is returned by [Server.Start] when shutdown began before
	// the listeners could be handed to the coordinator.
	ErrShutdown = errors.New("server shut down before start")
)

// RealtimeChannel is the contract for the real-time collaborator: it is
// attached to the HTTP listener's routes at startup and exposes a single
// teardown operation reporting completion through a callback.
type RealtimeChannel = realtime.Channel

// Mux is the route registration capability handed to a [RealtimeChannel].
type Mux = realtime.Mux

// Hub is the default real-time channel: a WebSocket relay with an SSE feed.
type Hub = realtime.Hub

// Message is one broadcast delivered by a [Hub].
type Message = realtime.Message

// NewHub creates a [Hub] for use with [WithRealtime], typically so the caller
// can [Hub.Broadcast] server-side events.
func NewHub(logger *slog.Logger) *Hub {
	return realtime.NewHub(logger)
}

// State is the shutdown state of a [Server].
type State = shutdown.State

// Shutdown states, in the only order they can occur.
const (
	StateRunning      = shutdown.StateRunning
	StateShuttingDown = shutdown.StateShuttingDown
	StateTerminated   = shutdown.StateTerminated
)

// Server is the development server: a static file listener, a real-time
// channel and a UDP control listener whose "shutdown" command tears all
// three down.
//
// The typical lifecycle is:
//
//	srv, err := devserve.New(devserve.WithRootDir("public"))
//	if err != nil {
//	    slog.Error("failed to create server", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	srv.Start(ctx) // exits the process once shutdown completes
//
// Shutdown is started by a "shutdown" datagram, by cancelling ctx, or by
// [Server.Shutdown]; every path runs the same coordinator exactly once.
type Server struct {
	httpAddr    string
	controlAddr string
	root        fs.FS
	index       string
	realtime    RealtimeChannel
	logger      *slog.Logger
	coord       *shutdown.Coordinator

	started atomic.Bool
	ready   chan struct{}

	mu        sync.Mutex
	boundHTTP net.Addr
	boundCtrl net.Addr
}

// New creates a [Server] with the given options.
//
// Defaults:
//   - HTTP port: 8088, control port: 8089, both on all interfaces
//   - Document root: ./public, index: index.html
//   - Grace period: 1s, failsafe timeout: 3s
//   - Real-time channel: WebSocket hub on /ws and /events
//
// Returns an error if any option is invalid, if both ports are the same
// non-zero value, or if the grace period is not shorter than the failsafe.
func New(opts ...Option) (*Server, error) {
	cfg := &serverConfig{
		httpPort:        DefaultHTTPPort,
		controlPort:     DefaultControlPort,
		index:           DefaultIndex,
		gracePeriod:     DefaultGracePeriod,
		failsafeTimeout: DefaultFailsafeTimeout,
		exit:            os.Exit,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.httpPort != 0 && cfg.httpPort == cfg.controlPort {
		return nil, fmt.Errorf("http and control ports must differ, both are %d", cfg.httpPort)
	}
	if cfg.gracePeriod >= cfg.failsafeTimeout {
		return nil, fmt.Errorf("grace period (%s) must be shorter than failsafe timeout (%s)",
			cfg.gracePeriod, cfg.failsafeTimeout)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	root := cfg.root
	if root == nil {
		root = os.DirFS(DefaultRoot)
	}

	rt := cfg.realtime
	if rt == nil && !cfg.noRealtime {
		rt = realtime.NewHub(logger.With("component", "realtime"))
	}

	coord, err := shutdown.New(shutdown.Config{
		GracePeriod:     cfg.gracePeriod,
		FailsafeTimeout: cfg.failsafeTimeout,
		Sequential:      cfg.sequential,
		Exit:            cfg.exit,
		Logger:          logger.With("component", "shutdown"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shutdown coordinator: %w", err)
	}

	return &Server{
		httpAddr:    net.JoinHostPort(cfg.httpHost, strconv.Itoa(cfg.httpPort)),
		controlAddr: net.JoinHostPort(cfg.controlHost, strconv.Itoa(cfg.controlPort)),
		root:        root,
		index:       cfg.index,
		realtime:    rt,
		logger:      logger,
		coord:       coord,
		ready:       make(chan struct{}),
	}, nil
}

// Start binds both listeners, attaches the real-time channel and serves until
// shutdown completes.
//
// A bind failure on either port is returned immediately after releasing
// whatever did bind; there is no retry. Once serving, Start blocks until an
// exit timer fires. With the default exit function the process terminates
// and Start never returns; with [WithExitFunc] it returns nil afterwards.
//
// Cancelling ctx triggers shutdown the same way a control datagram does.
//
// If [Server.Shutdown] was called first, Start binds nothing and returns
// [ErrShutdown]. A shutdown racing the bind releases whatever the
// coordinator did not take and returns the same error.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if ctx.Err() != nil {
		return nil
	}
	if s.coord.State() != StateRunning {
		return ErrShutdown
	}

	responder := static.New(s.root, s.index, s.logger.With("component", "static"))
	httpListener := server.New(s.httpAddr, responder, s.logger.With("component", "http"))
	if s.realtime != nil {
		s.realtime.Attach(httpListener)
	}

	var controlListener *control.Listener
	var g errgroup.Group
	g.Go(func() error {
		return httpListener.Start(ctx)
	})
	g.Go(func() error {
		l, err := control.Listen(s.controlAddr, s.onCommand, s.logger.With("component", "control"))
		controlListener = l
		return err
	})

	if err := g.Wait(); err != nil {
		s.release(httpListener, controlListener)
		return err
	}

	if !s.register(controlListener, httpListener) {
		return ErrShutdown
	}

	controlListener.Start()

	s.mu.Lock()
	s.boundHTTP = httpListener.Addr()
	s.boundCtrl = controlListener.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("devserve ready",
		"http", s.boundHTTP.String(),
		"control", s.boundCtrl.String(),
		"realtime", s.realtime != nil,
	)

	select {
	case <-s.coord.Done():
	case <-ctx.Done():
		s.coord.Trigger("signal")
		<-s.coord.Done()
	}
	return nil
}

// onCommand is the control listener's callback.
func (s *Server) onCommand(cmd control.Command) {
	if cmd == control.CommandShutdown {
		s.coord.Trigger("control")
	}
}

// register hands the listeners to the coordinator in teardown order. If
// shutdown has already begun, the rejected closer and every later one are
// closed here and register returns false.
func (s *Server) register(controlListener *control.Listener, httpListener *server.Listener) bool {
	type entry struct {
		name   string
		closer shutdown.Closer
	}
	entries := []entry{{"control", controlListener}}
	if s.realtime != nil {
		entries = append(entries, entry{"realtime", s.realtime})
	}
	entries = append(entries, entry{"http", httpListener})

	for i, e := range entries {
		if s.coord.Register(e.name, e.closer) {
			continue
		}
		s.logger.Warn("shutdown began during startup, releasing listeners", "rejected", e.name)
		for _, rest := range entries[i:] {
			rest.closer.Close(func(error) {})
		}
		return false
	}
	return true
}

// release closes the resources of a failed startup without waiting.
func (s *Server) release(httpListener *server.Listener, controlListener *control.Listener) {
	discard := func(error) {}
	if httpListener.Addr() != nil {
		httpListener.Close(discard)
	}
	if controlListener != nil {
		controlListener.Close(discard)
	}
	if s.realtime != nil {
		s.realtime.Close(discard)
	}
}

// Shutdown triggers the shutdown sequence as if a control datagram had
// arrived. Returns false if shutdown had already begun.
func (s *Server) Shutdown(reason string) bool {
	return s.coord.Trigger(reason)
}

// Ready returns a channel that is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Done returns a channel that is closed after the exit function returns.
func (s *Server) Done() <-chan struct{} {
	return s.coord.Done()
}

// State reports the shutdown state.
func (s *Server) State() State {
	return s.coord.State()
}

// ExitCode returns the status passed to the exit function, or -1 while the
// server is still running.
func (s *Server) ExitCode() int {
	return s.coord.ExitCode()
}

// HTTPAddr returns the bound HTTP address, or nil before [Server.Ready].
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundHTTP
}

// ControlAddr returns the bound control address, or nil before [Server.Ready].
func (s *Server) ControlAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundCtrl
}
