// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts child processes in their own process group so
// ffmpeg and anything it spawns can be stopped together.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/bilihls/internal/metrics"
)

// Terminate stops the process group of cmd: SIGTERM, then SIGKILL once grace
// has elapsed. It drains waitCh and returns the process's Wait error.
// A nil command or unstarted process is a no-op.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signal(cmd, syscall.SIGTERM, "SIGTERM")

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		observeExit("", err)
		return err
	case <-timer.C:
		signal(cmd, syscall.SIGKILL, "SIGKILL")
		err := <-waitCh
		observeExit("forced_", err)
		return err
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal, name string) {
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.ProcSignals.WithLabelValues(name, "sent").Inc()
	case errors.Is(err, syscall.ESRCH), errors.Is(err, errFinished):
		metrics.ProcSignals.WithLabelValues(name, "esrch").Inc()
	default:
		metrics.ProcSignals.WithLabelValues(name, "error").Inc()
	}
}

func observeExit(prefix string, err error) {
	result := "exit0"
	if err != nil {
		result = "exit_nonzero"
	}
	metrics.ProcExits.WithLabelValues(prefix + result).Inc()
}
