package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaocaoooo/yemoshot/internal/sweeper"
)

var sweepMaxAge string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired captures once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		maxAge := cfg.Storage.MaxAge
		if sweepMaxAge != "" {
			if maxAge, err = parseDuration(sweepMaxAge); err != nil {
				return err
			}
		}

		res := sweeper.New(cfg.Storage.OutputDir, maxAge, sweeper.WithLogger(logger)).Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned %d, removed %d, failed %d\n",
			cfg.Storage.OutputDir, res.Scanned, res.Removed, res.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepMaxAge, "max-age", "", "override storage.max_age, e.g. 12h")
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}
