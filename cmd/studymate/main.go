// studymate is a conversational tutoring assistant for the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"studymate/internal/config"
	"studymate/internal/logging"
)

var (
	verbose    bool
	configPath string
	sessionID  string
	stream     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "studymate",
	Short: "studymate - a grounded tutoring assistant",
	Long: `studymate answers student questions, optionally grounding answers in
trusted web sources, and runs short practice-question cycles.

Run without arguments to start an interactive chat session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logging.Initialize(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Path to config.json")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Resume an existing session by ID")
	rootCmd.PersistentFlags().BoolVar(&stream, "stream", false, "Stream reply tokens as they arrive")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(policyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
