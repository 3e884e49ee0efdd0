// Package cli wires the live-service commands: serve, migrate and watch.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwrk-planet/live-service/config"
	"github.com/cwrk-planet/live-service/pkg/logger"
)

var version = "v0.1.0"

type rootOptions struct {
	configPath string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "live-service",
		Short:         "Real-time broker for live rooms: chat, danmu, gifts and presence.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to config.yaml (default: $CONFIG_PATH or ./config/config.yaml)")

	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts), newWatchCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.LoadConfig()
}

func initLogger(cfg config.Logging) error {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Env),
		Service:   cfg.Service,
		Version:   cfg.Version,
		Backend:   logger.Backend(cfg.Backend),
		Level:     level,
		AddSource: cfg.AddSource,
		Debug:     cfg.Debug,
	})
	return nil
}
