// Package devserve provides a small local development server with an
// out-of-band shutdown channel.
//
// A [Server] runs three listeners:
//
//   - HTTP (default :8088): static files from a document root, 404 otherwise
//   - Real-time channel on the same listener: WebSocket at /ws, SSE at /events
//   - UDP control (default :8089): the datagram "shutdown" stops the server
//
// # Quick Start
//
//	srv, _ := devserve.New(devserve.WithRootDir("public"))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	srv.Start(ctx) // serves until shutdown, then exits the process
//
// From another terminal:
//
//	echo shutdown | nc -u -w0 127.0.0.1 8089
//
// # Shutdown
//
// The first shutdown request (control datagram, context cancellation or
// [Server.Shutdown]) arms a failsafe timer, then issues close requests in a
// fixed order: control listener, real-time channel, HTTP listener. Close
// completions are logged but not awaited. Once the last request is issued a
// grace timer is armed. The grace timer exits with status 0, the failsafe
// with status 1; whichever fires first wins and stops the other. Later
// shutdown requests are ignored.
//
// Exit is timer-driven: even when every close completes instantly the process
// lives for the full grace period, and it never outlives the failsafe.
//
// # Architecture
//
//   - internal/static: request path to file bytes with extension content types
//   - internal/server: HTTP listener with attachable routes
//   - internal/realtime: WebSocket/SSE broadcast hub
//   - internal/control: UDP command listener and client
//   - internal/shutdown: the shutdown coordinator and its two timers
//   - config: YAML/TOML configuration for the standalone binary
//   - web: embedded default site
package devserve
