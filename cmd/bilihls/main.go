// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command bilihls resolves platform media references, downloads them and
// serves on-demand HLS presentations of series episodes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
