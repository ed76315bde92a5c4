package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/monitoring"
)

var logf = monitoring.Component("posecapture")

// commandContext resolves the session configuration once per invocation.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.SessionConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig returns the defaults overlaid with the --config file, if any.
func (c *commandContext) ensureConfig() (*config.SessionConfig, error) {
	c.configOnce.Do(func() {
		cfg := config.DefaultSessionConfig()
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				loaded, err := config.LoadSessionConfig(path)
				if err != nil {
					c.configErr = err
					return
				}
				cfg.Apply(loaded)
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "posecapture",
		Short:         "Two-camera pose landmark capture",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Session configuration file (.json or .toml)")

	rootCmd.AddCommand(newCaptureCommand(ctx))
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newSessionsCommand())
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}
