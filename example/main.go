package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/devserve"
	"github.com/jpalmerr/devserve/web"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// keep a handle on the hub so the server can push its own messages
	hub := devserve.NewHub(logger.With("component", "realtime"))

	srv, err := devserve.New(
		devserve.WithRoot(web.Assets()),
		devserve.WithControlHost("127.0.0.1"),
		devserve.WithRealtime(hub),
		devserve.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		printBanner(srv)
		// see clock.go
		RunClock(ctx, hub, 5*time.Second)
	}()

	if err := srv.Start(ctx); err != nil {
		slog.Error("devserve error", "error", err)
		os.Exit(1)
	}
}

func printBanner(srv *devserve.Server) {
	fmt.Println()
	fmt.Println("  devserve demo")
	fmt.Println()
	fmt.Printf("  Open http://%s in two browser tabs and chat between them.\n", srv.HTTPAddr())
	fmt.Println("  The server broadcasts the time every 5 seconds.")
	fmt.Println()
	fmt.Printf("  Stop:  go run ./cmd/devserve stop\n")
	fmt.Printf("    or:  echo shutdown | nc -u -w0 127.0.0.1 %d\n", devserve.DefaultControlPort)
	fmt.Println()
}
