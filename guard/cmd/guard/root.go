package main

import (
	"github.com/spf13/cobra"

	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "Rahnavard request security service",
	Long: `guard fronts the Rahnavard rep and administration APIs with the request
security pipeline: IP blocking, rate limiting, session verification, CSRF
checks and input threat scanning, with a security event log behind them.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/sos/guard/config.yaml)")
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	return cfg, logger, nil
}
