// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/version"
)

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string
	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "bilihls",
		Short:         "Resolve, download and serve platform media as HLS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.AppConfig
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads .env files, the config file and the environment once,
// then reconfigures the global logger from the result.
func (c *commandContext) ensureConfig() (config.AppConfig, error) {
	c.configOnce.Do(func() {
		if err := config.LoadDotEnv("."); err != nil {
			c.configErr = err
			return
		}
		cfg, err := config.NewLoader(strings.TrimSpace(*c.configFlag), version.Version).Load()
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.LogLevel
		if lv := strings.TrimSpace(*c.logLevelFlag); lv != "" {
			level = lv
		}
		format := cfg.LogFormat
		if isTerminal(os.Stderr) {
			format = "console"
		}
		log.Configure(log.Config{
			Level:   level,
			Format:  format,
			Service: "bilihls",
			Version: cfg.Version,
		})
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
