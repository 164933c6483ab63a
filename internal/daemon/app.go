// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// App ties the manager to process signals.
type App struct {
	logger  zerolog.Logger
	manager Manager
	signals []os.Signal
}

// NewApp creates a new App orchestrator stopping on SIGINT and SIGTERM.
func NewApp(logger zerolog.Logger, manager Manager) *App {
	return &App{
		logger:  logger,
		manager: manager,
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Run blocks until ctx is cancelled, a stop signal arrives or a server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if len(a.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, a.signals...)
		defer stop()
	}
	err := a.manager.Start(ctx)
	if err != nil {
		a.logger.Error().Err(err).Str("event", "daemon.exit").Msg("daemon stopped with error")
	}
	return err
}
