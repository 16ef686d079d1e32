package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"Kakofonix/astrec/config"
	collect_logs "Kakofonix/astrec/internal/collect_logs"
)

func newCollectLogsCmd(stdout io.Writer) *cobra.Command {
	var (
		configPath string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "collect-logs",
		Short: "Package logs, config and recording inventory into a zip archive for support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
			}
			if output == "" {
				output = fmt.Sprintf("astrec-logs-%s.zip", time.Now().Format("20060102-150405"))
			}
			err = collect_logs.CollectLogs(output, collect_logs.Sources{
				ConfigPath: configPath,
				LogFile:    cfg.Logging.File,
				Prefix:     cfg.Capture.Prefix,
			})
			if err != nil {
				return fmt.Errorf("failed to collect logs: %w", err)
			}
			fmt.Fprintf(stdout, "Created %s with logs, config, and diagnostics.\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the recorder's JSON configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "zip file to write (default astrec-logs-<timestamp>.zip)")
	return cmd
}
