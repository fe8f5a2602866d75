package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/devserve"
	"github.com/jpalmerr/devserve/config"
	"github.com/jpalmerr/devserve/web"
	"github.com/spf13/cobra"
)

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the development server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development server",
	Long: `Start the development server.

The server will:
  - Serve files from the document root on the HTTP port
  - Relay WebSocket messages on /ws and stream them as SSE on /events
  - Listen for the "shutdown" datagram on the UDP control port

If the document root does not exist, a built-in page is served instead.
SIGINT and SIGTERM start the same shutdown as the control datagram.

Flags override values from the config file.

Example:
  devserve serve
  devserve serve -c devserve.yaml
  devserve serve --root ./dist --http-port 3000 --control-port 3001`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (.yaml, .yml or .toml)")
	serveCmd.Flags().String("root", "", "document root directory (default \"public\")")
	serveCmd.Flags().Int("http-port", 0, "HTTP port (default 8088)")
	serveCmd.Flags().Int("control-port", 0, "UDP control port (default 8089)")
}

// loadServeConfig reads the config file, if any, and applies flag overrides.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("root") {
		cfg.Root, _ = cmd.Flags().GetString("root")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("control-port") {
		cfg.ControlPort, _ = cmd.Flags().GetInt("control-port")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// siteRoot returns the filesystem to serve, falling back to the embedded
// site when dir does not exist.
func siteRoot(dir string, logger *slog.Logger) fs.FS {
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		return os.DirFS(dir)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("document root unreadable, serving built-in site", "root", dir, "error", err)
	} else {
		logger.Info("document root not found, serving built-in site", "root", dir)
	}
	return web.Assets()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	level, _ := cfg.Level()
	logger := newLogger(cmd.ErrOrStderr(), level)

	opts := config.Options(cfg, logger)
	opts = append(opts, devserve.WithRoot(siteRoot(cfg.Root, logger)))

	srv, err := devserve.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting server",
		"http_port", cfg.HTTPPort,
		"control_port", cfg.ControlPort,
		"root", cfg.Root,
		"grace_period", cfg.GracePeriod.Duration().String(),
		"failsafe_timeout", cfg.FailsafeTimeout.Duration().String(),
	)

	// cancel on SIGINT/SIGTERM; the server turns that into a shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// blocks until the exit timers terminate the process; returns only on
	// startup failure
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
