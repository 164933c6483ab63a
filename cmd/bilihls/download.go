// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"

	"github.com/ManuGH/bilihls/internal/download"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		episode    int
		mode       string
		outDir     string
		keepTracks bool
	)
	cmd := &cobra.Command{
		Use:   "download <reference>",
		Short: "Download the best rendition of a target and mux it into one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := download.ParseMode(mode)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			target, err := svc.client.Resolve(cmd.Context(), args[0], episode)
			if err != nil {
				return err
			}

			opts := download.Options{Mode: m, KeepTracks: keepTracks}
			var bars *progressBars
			if m == download.ModeFiles && isTerminal(cmd.ErrOrStderr()) {
				bars = newProgressBars(cmd.ErrOrStderr())
				opts.Progress = bars.update
			}
			res, err := svc.downloader(outDir).Run(cmd.Context(), target, opts)
			if bars != nil {
				bars.stop(err == nil)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			return nil
		},
	}
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "1-based episode index (series) or page (videos)")
	cmd.Flags().StringVar(&mode, "mode", "files", "files (download tracks, then mux) or stream (mux remote URLs)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Override the storage base directory")
	cmd.Flags().BoolVar(&keepTracks, "keep-tracks", false, "Keep the separate video and audio files")
	return cmd
}

// progressBars renders one byte tracker per track kind.
type progressBars struct {
	pw progress.Writer

	mu       sync.Mutex
	trackers map[string]*progress.Tracker
	totals   map[string]int64
}

func newProgressBars(out io.Writer) *progressBars {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Speed = true
	go pw.Render()
	return &progressBars{
		pw:       pw,
		trackers: make(map[string]*progress.Tracker),
		totals:   make(map[string]int64),
	}
}

func (b *progressBars) update(kind string, written, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tr, ok := b.trackers[kind]
	if !ok {
		tr = &progress.Tracker{Message: kind, Total: max(total, 0), Units: progress.UnitsBytes}
		b.trackers[kind] = tr
		b.totals[kind] = tr.Total
		b.pw.AppendTracker(tr)
	}
	if total > 0 && b.totals[kind] != total {
		b.totals[kind] = total
		tr.UpdateTotal(total)
	}
	tr.SetValue(written)
}

func (b *progressBars) stop(ok bool) {
	b.mu.Lock()
	for _, tr := range b.trackers {
		if ok {
			tr.MarkAsDone()
		} else {
			tr.MarkAsErrored()
		}
	}
	b.mu.Unlock()
	b.pw.Stop()
	for b.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
