package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	"github.com/cptspacemanspiff/battery-notifier/internal/logging"
	"github.com/cptspacemanspiff/battery-notifier/internal/monitor"
	"github.com/cptspacemanspiff/battery-notifier/internal/telegram"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Send one report (and a critical alert if needed), then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			logger, closer, err := newLogger(cmd, cfg, opts, true)
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			reader := battery.NewReader(cfg.Battery, logger.With("topic", logging.TopicBattery))
			client := telegram.NewClient(cfg.Telegram, logger.With("topic", logging.TopicTelegram))
			m := monitor.New(cfg, reader, client, logger.With("topic", logging.TopicMonitor))
			return m.Report(cmd.Context(), monitor.KindManual)
		},
	}
}
