package config

import (
	"log/slog"

	"github.com/jpalmerr/devserve"
)

// Options converts parsed configuration into server options.
//
// The document root is taken as a directory on disk; callers that want a
// different filesystem append [devserve.WithRoot] after these options.
func Options(cfg *Config, logger *slog.Logger) []devserve.Option {
	opts := []devserve.Option{
		devserve.WithHTTPHost(cfg.HTTPHost),
		devserve.WithHTTPPort(cfg.HTTPPort),
		devserve.WithControlHost(cfg.ControlHost),
		devserve.WithControlPort(cfg.ControlPort),
		devserve.WithRootDir(cfg.Root),
		devserve.WithIndex(cfg.Index),
		devserve.WithGracePeriod(cfg.GracePeriod.Duration()),
		devserve.WithFailsafeTimeout(cfg.FailsafeTimeout.Duration()),
	}

	if cfg.SequentialClose {
		opts = append(opts, devserve.WithSequentialClose())
	}
	if !cfg.Realtime {
		opts = append(opts, devserve.WithoutRealtime())
	}
	if logger != nil {
		opts = append(opts, devserve.WithLogger(logger))
	}

	return opts
}
