package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	"github.com/cptspacemanspiff/battery-notifier/internal/logging"
	"github.com/cptspacemanspiff/battery-notifier/internal/report"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current battery report without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := newLogger(cmd, cfg, opts, false)
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			reader := battery.NewReader(cfg.Battery, logger.With("topic", logging.TopicBattery))
			rec, err := reader.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			_, err = fmt.Fprint(out, report.Format(rec))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw record as JSON")
	return cmd
}
