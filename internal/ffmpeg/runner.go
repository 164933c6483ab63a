// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg launches and supervises the external media processor.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	defaultStopGrace = 5 * time.Second
	stderrTailBytes  = 4096
)

// Process is a launched media processor.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	Pid() int
}

// Runner starts media processor invocations. Implementations must not tie
// the process lifetime to ctx; ctx only carries logging and tracing values.
type Runner interface {
	Start(ctx context.Context, args []string) (Process, error)
}

// ExecRunner runs a binary on the host.
type ExecRunner struct {
	Bin    string
	Logger zerolog.Logger
	// StartTimeout and StallTimeout arm the progress watchdog of Run.
	// Zero disables the respective check.
	StartTimeout time.Duration
	StallTimeout time.Duration
	// StopGrace is the SIGTERM to SIGKILL delay when Run is cancelled.
	StopGrace time.Duration
}

// NewExecRunner returns a runner for bin.
func NewExecRunner(bin string, logger zerolog.Logger) *ExecRunner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &ExecRunner{Bin: bin, Logger: logger, StopGrace: defaultStopGrace}
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	waitCh chan error
	once   sync.Once
	err    error
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error {
	p.once.Do(func() {
		err := <-p.waitCh
		if err != nil {
			if tail := p.stderr.String(); tail != "" {
				err = fmt.Errorf("%w: %s", err, tail)
			}
		}
		p.err = err
	})
	return p.err
}

// Start launches the process in its own process group.
func (r *ExecRunner) Start(ctx context.Context, args []string) (Process, error) {
	p, err := r.start(args, nil)
	if err != nil {
		return nil, err
	}
	logger := log.WithContext(ctx, r.Logger)
	logger.Info().
		Str(log.FieldEvent, "ffmpeg.started").
		Int(log.FieldPID, p.Pid()).
		Msg("media processor started")
	return p, nil
}

func (r *ExecRunner) start(args []string, stdout io.Writer) (*execProcess, error) {
	cmd := exec.Command(r.Bin, args...) // #nosec G204 -- binary comes from configuration
	procgroup.Set(cmd)
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	cmd.Stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Bin, err)
	}
	p := &execProcess{cmd: cmd, stderr: stderr, waitCh: make(chan error, 1)}
	go func() { p.waitCh <- cmd.Wait() }()
	return p, nil
}

// Run executes args to completion. The caller is expected to pass
// "-progress pipe:1" so the watchdog can observe progress on stdout.
// Cancelling ctx or a watchdog timeout terminates the process group.
func (r *ExecRunner) Run(ctx context.Context, args []string) error {
	pr, pw := io.Pipe()
	p, err := r.start(args, pw)
	if err != nil {
		_ = pw.Close()
		return err
	}

	wd := NewWatchdog(r.StartTimeout, r.StallTimeout)
	go func() {
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			wd.ParseLine(sc.Text())
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	wdErr := make(chan error, 1)
	go func() { wdErr <- wd.Run(wdCtx) }()

	grace := r.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	logger := log.WithContext(ctx, r.Logger)

	var runErr error
	select {
	case err := <-p.waitCh:
		runErr = err
	case <-ctx.Done():
		_ = procgroup.Terminate(p.cmd, p.waitCh, grace)
		runErr = ctx.Err()
	case err := <-wdErr:
		switch {
		case err != nil:
			logger.Warn().Err(err).Int(log.FieldPID, p.Pid()).Msg("media processor watchdog tripped")
			_ = procgroup.Terminate(p.cmd, p.waitCh, grace)
			runErr = err
		case ctx.Err() != nil:
			_ = procgroup.Terminate(p.cmd, p.waitCh, grace)
			runErr = ctx.Err()
		default:
			// progress=end; the exit status decides.
			runErr = <-p.waitCh
		}
	}
	_ = pw.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		if tail := p.stderr.String(); tail != "" {
			runErr = fmt.Errorf("%w: %s", runErr, tail)
		}
	}
	return runErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
