// Command layerd runs the viewport layer engine as a daemon and offers
// one-shot probes against the features API.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/viewport-layers/internal/core/config"
	mylog "github.com/mohammed-shakir/viewport-layers/internal/logger"
)

var Version = "dev"

var (
	cfg         config.Config
	optLogLevel string
	optAPIURL   string
)

var rootCmd = &cobra.Command{
	Use:           "layerd",
	Short:         "Viewport-driven geospatial layer engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.FromEnv()
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = optLogLevel
		}
		if _, err := mylog.ParseLevel(cfg.LogLevel); err != nil {
			return err
		}
		if cmd.Flags().Changed("api") {
			cfg.FeaturesAPIURL = optAPIURL
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&optLogLevel, "log-level", "info", "debug|info|warn|error, overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&optAPIURL, "api", "", "features API base URL, overrides FEATURES_API_URL")
	rootCmd.AddCommand(serveCmd, probeCmd, zonalCmd)
}

func newLogger(component string) *slog.Logger {
	zl := mylog.Build(mylog.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "layerd",
		Component: component,
	}, os.Stdout)
	return mylog.NewSlog(&zl)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("layerd failed", "err", err)
		os.Exit(1)
	}
}
