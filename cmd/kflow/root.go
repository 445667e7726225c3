package main

import (
	"log/slog"

	"github.com/birdayz/kflow/pkg/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dir        string
	storage    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "kflow",
		Short:         "Run dataflow pipelines with checkpointed node state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "pipeline config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", "", "state directory, overrides the config")
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "storage backend (pebble|badger|memory), overrides the config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides the config")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

// load reads the config file and applies flag overrides.
func (o *rootOptions) load() (Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dir != "" {
		cfg.Dir = o.dir
	}
	if o.storage != "" {
		cfg.Storage = o.storage
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (c Config) logger() (*slog.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.New(log.Options{Level: level, Format: log.Format(c.Log.Format)}), nil
}
