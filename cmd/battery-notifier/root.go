package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-notifier/internal/config"
	"github.com/cptspacemanspiff/battery-notifier/internal/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
	logTopics  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "battery-notifier",
		Short: "Report device battery status to a Telegram chat",
		Long: `battery-notifier reads the battery from sysfs and posts a status report to a
Telegram chat at startup, once an hour, and whenever the report's refresh
button is pressed. A separate warning is sent while the charge is critical.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to the TOML config file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable all debug logging (equivalent to --log=all)")
	cmd.PersistentFlags().StringVar(&opts.logTopics, "log", "", "comma-separated debug topics: battery,telegram,monitor,dbus,mqtt (or 'all')")

	cmd.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newSendCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the config file. When the default path is absent and no
// --config was given, defaults plus environment overrides are used instead.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
		return nil, err
	}
	cfg = config.DefaultConfig()
	config.ApplyEnv(cfg)
	return config.NormalizeAndValidate(cfg)
}

// newLogger builds the process logger. withFile controls whether the
// configured log file is opened.
func newLogger(cmd *cobra.Command, cfg *config.Config, opts *rootOptions, withFile bool) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	lo := logging.Options{
		Level:   level,
		Topics:  logging.ParseTopics(opts.verbose, opts.logTopics),
		Console: cmd.ErrOrStderr(),
	}
	if withFile {
		lo.File = cfg.Log.File
	}
	return logging.New(lo)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
