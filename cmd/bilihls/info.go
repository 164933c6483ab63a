// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ManuGH/bilihls/internal/media"
)

type manifestView struct {
	Target targetView     `json:"target"`
	Video  []videoRow     `json:"video"`
	Audio  []audioRow     `json:"audio"`
	Best   *selectionView `json:"best,omitempty"`
}

type videoRow struct {
	Quality   int   `json:"quality"`
	CodecID   int   `json:"codec_id"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Bandwidth int64 `json:"bandwidth"`
	URLs      int   `json:"urls"`
}

type audioRow struct {
	Quality   int    `json:"quality"`
	Codecs    string `json:"codecs"`
	Bandwidth int64  `json:"bandwidth"`
	URLs      int    `json:"urls"`
}

type selectionView struct {
	VideoIndex int `json:"video_index"`
	AudioIndex int `json:"audio_index"`
}

func viewManifest(t media.Target, m media.TrackManifest) manifestView {
	v := manifestView{Target: viewTarget(t)}
	for _, tr := range m.Video {
		v.Video = append(v.Video, videoRow{
			Quality: tr.Quality, CodecID: tr.CodecID, Width: tr.Width, Height: tr.Height,
			Bandwidth: tr.Bandwidth, URLs: len(media.Prioritize(tr.URLs())),
		})
	}
	for _, tr := range m.Audio {
		v.Audio = append(v.Audio, audioRow{
			Quality: tr.Quality, Codecs: tr.Codecs, Bandwidth: tr.Bandwidth,
			URLs: len(media.Prioritize(tr.URLs())),
		})
	}
	if sel, err := media.SelectBest(m); err == nil {
		v.Best = &selectionView{VideoIndex: sel.VideoIndex, AudioIndex: sel.AudioIndex}
	}
	return v
}

func codecName(id int) string {
	switch id {
	case media.CodecAVC:
		return "avc"
	case media.CodecHEVC:
		return "hevc"
	case media.CodecAV1:
		return "av1"
	default:
		return strconv.Itoa(id)
	}
}

func (v manifestView) render() string {
	mark := func(i, best int) string {
		if v.Best != nil && i == best {
			return "*"
		}
		return ""
	}
	bestVideo, bestAudio := -1, -1
	if v.Best != nil {
		bestVideo, bestAudio = v.Best.VideoIndex, v.Best.AudioIndex
	}

	videoRows := make([][]string, 0, len(v.Video))
	for i, tr := range v.Video {
		videoRows = append(videoRows, []string{
			mark(i, bestVideo),
			strconv.Itoa(tr.Quality),
			codecName(tr.CodecID),
			fmt.Sprintf("%dx%d", tr.Width, tr.Height),
			strconv.FormatInt(tr.Bandwidth, 10),
			strconv.Itoa(tr.URLs),
		})
	}
	audioRows := make([][]string, 0, len(v.Audio))
	for i, tr := range v.Audio {
		audioRows = append(audioRows, []string{
			mark(i, bestAudio),
			strconv.Itoa(tr.Quality),
			tr.Codecs,
			strconv.FormatInt(tr.Bandwidth, 10),
			strconv.Itoa(tr.URLs),
		})
	}

	videoAligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight}
	return renderTable([]string{"", "Quality", "Codec", "Size", "Bandwidth", "URLs"}, videoRows, videoAligns) + "\n" +
		renderTable([]string{"", "Quality", "Codecs", "Bandwidth", "URLs"}, audioRows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight})
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var episode int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <reference>",
		Short: "List the renditions of a target and the one that would be picked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			manifest, err := svc.client.FetchManifest(cmd.Context(), target)
			if err != nil {
				return err
			}
			view := viewManifest(target, manifest)
			if asJSON {
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, view.Target.rows(), nil))
			fmt.Fprintln(cmd.OutOrStdout(), view.render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "1-based episode index (series) or page (videos)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
