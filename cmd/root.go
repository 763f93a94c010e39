package cmd

import (
	"fmt"
	"os"

	"cinethos/config"
	"cinethos/logger"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cinethos",
	Short: "cinethos plays Hypertube streams while the server prepares them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			Console:    cfg.LogFormat == "console",
			OutputPath: cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
