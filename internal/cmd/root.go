package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xiaocaoooo/yemoshot/internal/config"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
)

var (
	cfgFile  string
	logLevel string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "yemoshot",
	Short: "Web page screenshot and PDF capture service",
	Long: `yemoshot renders web pages in headless Chrome and stores the result as
PNG, JPEG or PDF for download. Captures expire after a retention period.

Use the subcommands to perform specific operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./yemoshot.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

// loadRuntime resolves configuration and builds the logger for a command.
// Flags override file and environment values.
func loadRuntime(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	v := viper.New()
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := v.BindPFlag("logging.level", f); err != nil {
			return nil, nil, fmt.Errorf("bind --log-level: %w", err)
		}
	}
	if f := cmd.Flags().Lookup("port"); f != nil {
		if err := v.BindPFlag("server.port", f); err != nil {
			return nil, nil, fmt.Errorf("bind --port: %w", err)
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
