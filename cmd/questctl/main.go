// Command questctl is the operator CLI for the quest engine.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/greenquest/internal/platform/config"
)

var (
	contentDir string
	rosterPath string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "questctl: %v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debugMode bool
	root := &cobra.Command{
		Use:           "questctl",
		Short:         "Operate the GreenQuest submission and reward engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&contentDir, "content", "", "curriculum directory (overrides QUEST_CURRICULUM_PATH)")
	root.PersistentFlags().StringVar(&rosterPath, "roster", "", "roster file (overrides QUEST_ROSTER_PATH)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	root.AddCommand(
		newValidateCommand(),
		newLeaderboardCommand(),
		newExportCommand(),
		newResetCommand(),
	)
	return root
}

// setupLogger sends logs to stderr so command output stays clean.
func setupLogger(debugMode bool) {
	logLevel := slog.LevelWarn
	if debugMode {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if contentDir != "" {
		cfg.CurriculumPath = contentDir
	}
	if rosterPath != "" {
		cfg.RosterPath = rosterPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
