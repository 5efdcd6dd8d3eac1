package cli

import (
	"context"
	"fmt"

	"github.com/shinyvision/i18nlens/internal/clipboard"
	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/shinyvision/i18nlens/internal/references"
	"github.com/shinyvision/i18nlens/internal/search"
	"github.com/spf13/cobra"
)

var refsCmd = &cobra.Command{
	Use:   "refs <workspace> <key>",
	Short: "List the usages of a locale key",
	Long: `Searches the workspace for the key as a quoted literal and prints the
result in the search panel's "copy all" format.

Example:
  i18nlens refs . common.button.ok`,
	Args: cobra.ExactArgs(2),
	RunE: runRefs,
}

func init() {
	rootCmd.AddCommand(refsCmd)
}

func runRefs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	key := args[1]

	ctx := context.Background()
	index := locale.NewIndex()
	if _, err := locale.NewBuilder(cfg.WorkspaceRoot, cfg.LocaleGlobs, index).Build(ctx); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if !index.Has(key) {
		return fmt.Errorf("unknown key %q", key)
	}

	ws := search.New(cfg.WorkspaceRoot, cfg.SearchExclude, clipboard.NewMemory())
	defer ws.Close()
	matches, err := ws.Matches(ctx, references.NewQuery(key))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), search.Render(matches))
	return nil
}
