// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ManuGH/bilihls/internal/bili"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/session"
)

// cookieOrigins are read back from the jar after a confirmed login.
var cookieOrigins = []string{
	"https://www.bilibili.com/",
	"https://api.bilibili.com/",
	"https://passport.bilibili.com/",
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in by scanning a QR code with the mobile app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			out := cmd.OutOrStdout()
			qr, err := svc.client.GenerateQR(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Open this URL as a QR code and scan it with the app:")
			fmt.Fprintln(out, qr.URL)

			err = svc.client.WaitQR(cmd.Context(), qr.Key, bili.DefaultQRPollInterval, func(st bili.QRStatus) {
				fmt.Fprintf(out, "status: %s\n", st)
			})
			if errors.Is(err, bili.ErrQRExpired) {
				return fmt.Errorf("login failed: %w, run login again", err)
			}
			if err != nil {
				return err
			}

			state, err := loggedInState(svc, cfg.Upstream.APIBase, cfg.Upstream.PassportBase)
			if err != nil {
				return err
			}
			if err := svc.store.Save(state); err != nil {
				return err
			}
			logger := log.WithComponent("session")
			logger.Info().
				Str(log.FieldEvent, "session.saved").
				Int("cookies", len(state.Cookies)).
				Msg("login confirmed")
			fmt.Fprintf(out, "logged in, session saved to %s\n", svc.store.Path())
			return nil
		},
	}
	return cmd
}

func loggedInState(svc *services, bases ...string) (session.State, error) {
	origins := append([]string(nil), cookieOrigins...)
	for _, b := range bases {
		if b != "" {
			origins = append(origins, b)
		}
	}
	urls := make([]*url.URL, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		urls = append(urls, u)
	}
	state := session.FromJar(svc.jar, urls...)
	if !session.IsAuthenticated(state) {
		return state, fmt.Errorf("login confirmed but no %s cookie was issued", session.AuthCookie)
	}
	return state, nil
}
