package cli

import (
	"fmt"
	"os"

	"github.com/shinyvision/i18nlens/internal/config"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var (
	verbosity int
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "i18nlens",
	Short: "Language server for dotted i18n keys",
	Long: `i18nlens shows the translation behind "common.button.ok" style keys
in JavaScript and TypeScript sources: inline after the literal, on hover,
as a jump to the dictionary and as a list of usages.

Without a subcommand it serves the language server protocol over stdio.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		var path *string
		if logFile != "" {
			path = &logFile
		}
		commonlog.Configure(1+verbosity, path)
	},
	RunE: runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "more log output (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

// loadConfig returns the configuration a server rooted at workspace would use.
func loadConfig(workspace string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.SetWorkspaceRoot(workspace)
	if _, err := os.Stat(cfg.WorkspaceRoot); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if _, err := cfg.LoadWorkspaceFile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
