package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// ErrClosed is reported when Close is called more than once.
var ErrClosed = errors.New("http listener closed")

// Listener is the HTTP side of the development server.
//
// Attachments register their own routes via [Listener.Handle]; routes match
// the request path exactly. Every other path, including non-canonical ones
// such as "//x" or "/a/../x", goes to the fallback handler (the static
// responder) unchanged. Nothing is cleaned or redirected.
type Listener struct {
	addr       string
	fallback   http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	routesMu sync.RWMutex
	routes   map[string]http.Handler

	mu     sync.Mutex
	ln     net.Listener
	closed atomic.Bool
}

// New creates a [Listener] bound to addr once [Listener.Start] is called.
//
// Parameters:
//   - addr: TCP address, e.g. ":8088" or "127.0.0.1:0"
//   - fallback: handler for every path no attachment claims (may be nil)
//   - logger: logger for server events
func New(addr string, fallback http.Handler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}

	return &Listener{
		addr:     addr,
		fallback: fallback,
		logger:   logger,
		routes:   make(map[string]http.Handler),
	}
}

// Handle registers handler for the exact request path. It is safe to call
// before or after Start; a later registration for the same path replaces
// the earlier one.
func (l *Listener) Handle(path string, handler http.Handler) {
	l.routesMu.Lock()
	defer l.routesMu.Unlock()
	l.routes[path] = handler
}

// ServeHTTP dispatches to an attached route or the fallback.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.routesMu.RLock()
	h, ok := l.routes[r.URL.Path]
	l.routesMu.RUnlock()

	if !ok {
		h = l.fallback
	}
	h.ServeHTTP(w, r)
}

// Start binds the TCP listener and begins serving in a background goroutine.
//
// The bind happens synchronously so an unavailable port is reported here
// rather than lost in the serving goroutine. There is no retry.
//
// Request contexts derive from ctx, so cancelling ctx also cancels long-lived
// handlers such as event streams. Cancelling ctx does not close the listener;
// use [Listener.Close].
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to bind http listener %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.httpServer = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	srv := l.httpServer
	l.mu.Unlock()

	l.logger.Info("http listener running", "addr", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close issues an asynchronous close and returns immediately.
//
// The listener stops accepting connections and waits for in-flight requests
// to finish before calling done. Hijacked connections (WebSockets) are not
// tracked and must be closed by their owner. A second Close reports
// [ErrClosed].
func (l *Listener) Close(done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if !l.closed.CompareAndSwap(false, true) {
		go done(ErrClosed)
		return
	}

	l.mu.Lock()
	srv := l.httpServer
	l.mu.Unlock()

	go func() {
		if srv == nil {
			done(nil)
			return
		}
		done(srv.Shutdown(context.Background()))
	}()
}
