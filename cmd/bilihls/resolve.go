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

// targetView is the printable form of a resolved target.
type targetView struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	SeasonTitle string `json:"season_title,omitempty"`
	SeasonID    int64  `json:"season_id,omitempty"`
	EpisodeID   int64  `json:"ep_id,omitempty"`
	BVID        string `json:"bvid,omitempty"`
	AID         int64  `json:"aid,omitempty"`
	CID         int64  `json:"cid,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
	Episodes    int    `json:"episodes,omitempty"`
}

func viewTarget(t media.Target) targetView {
	switch v := t.(type) {
	case media.VideoTarget:
		return targetView{Kind: "video", Title: v.Title, BVID: v.BVID, AID: v.AID, CID: v.CID}
	case media.EpisodeTarget:
		return targetView{
			Kind:        "episode",
			Title:       v.DisplayTitle(),
			SeasonTitle: v.SeasonTitle,
			SeasonID:    v.SeasonID,
			EpisodeID:   v.EpisodeID,
			AID:         v.AID,
			CID:         v.CID,
			Pending:     v.Pending(),
			Episodes:    len(v.Episodes),
		}
	default:
		return targetView{Kind: "unknown", Title: t.DisplayTitle()}
	}
}

func (v targetView) rows() [][]string {
	rows := [][]string{{"kind", v.Kind}, {"title", v.Title}}
	add := func(k, val string) {
		if val != "" && val != "0" {
			rows = append(rows, []string{k, val})
		}
	}
	add("season", v.SeasonTitle)
	add("season_id", strconv.FormatInt(v.SeasonID, 10))
	add("ep_id", strconv.FormatInt(v.EpisodeID, 10))
	add("bvid", v.BVID)
	add("aid", strconv.FormatInt(v.AID, 10))
	add("cid", strconv.FormatInt(v.CID, 10))
	add("episodes", strconv.Itoa(v.Episodes))
	if v.Kind == "episode" {
		rows = append(rows, []string{"pending", yesNo(v.Pending)})
	}
	return rows
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var episode int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Resolve a URL or code to a playback target",
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
			view := viewTarget(target)
			if asJSON {
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, view.rows(), nil))
			if ep, ok := target.(media.EpisodeTarget); ok && ep.Pending() {
				fmt.Fprintln(cmd.OutOrStdout(), renderEpisodes(ep.Episodes))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "1-based episode index (series) or page (videos)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func renderEpisodes(episodes []media.Episode) string {
	rows := make([][]string, 0, len(episodes))
	for i, e := range episodes {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(e.PublicID(), 10),
			e.Display(""),
		})
	}
	return renderTable([]string{"#", "EP", "Title"}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
}
