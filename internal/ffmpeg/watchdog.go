// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/bilihls/internal/log"
)

var (
	// ErrStartTimeout means ffmpeg produced no output within the start window.
	ErrStartTimeout = fmt.Errorf("ffmpeg start timeout: %w", context.DeadlineExceeded)
	// ErrStalled means ffmpeg stopped making progress.
	ErrStalled = fmt.Errorf("ffmpeg stalled: %w", context.DeadlineExceeded)
)

type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Watchdog consumes ffmpeg -progress output and enforces start and stall
// timeouts.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration
	interval     time.Duration

	lastOutTimeMs int64
	lastTotalSize int64
	lastHeartbeat time.Time

	state       State
	hasProgress bool

	completed chan struct{}
	doneOnce  sync.Once

	clock clock
}

// NewWatchdog creates a watchdog with the given timeouts.
func NewWatchdog(startTimeout, stallTimeout time.Duration) *Watchdog {
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		interval:     time.Second,
		completed:    make(chan struct{}),
		clock:        realClock{},
	}
}

// Run checks progress every interval until ctx ends, ffmpeg reports the end
// of its output, or a timeout trips.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	w.mu.Unlock()

	t := w.clock.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.completed:
			return nil
		case <-t.C():
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

// ParseLine processes one key=value line of the progress stream.
func (w *Watchdog) ParseLine(line string) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || strings.Contains(val, "=") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "out_time_ms", "out_time_us":
		v, _ := strconv.ParseInt(val, 10, 64)
		if v > w.lastOutTimeMs {
			w.lastOutTimeMs = v
			w.recordHeartbeat()
		}
	case "total_size":
		size, _ := strconv.ParseInt(val, 10, 64)
		if size > w.lastTotalSize {
			w.lastTotalSize = size
			w.recordHeartbeat()
		}
	case "progress":
		if val == "end" {
			w.state = StateCompleted
			w.doneOnce.Do(func() { close(w.completed) })
		}
	}
}

func (w *Watchdog) recordHeartbeat() {
	w.lastHeartbeat = w.clock.Now()
	if !w.hasProgress {
		w.hasProgress = true
		if w.state == StateStarting {
			w.state = StateRunning
		}
		log.L().Debug().Msg("watchdog: progress detected")
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if w.startTimeout > 0 && elapsed > w.startTimeout {
			w.state = StateTimedOut
			return ErrStartTimeout
		}
	case StateRunning:
		if w.stallTimeout > 0 && elapsed > w.stallTimeout {
			w.state = StateStalled
			return ErrStalled
		}
	}
	return nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
