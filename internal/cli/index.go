package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/shinyvision/i18nlens/internal/locale"
	"github.com/spf13/cobra"
)

var indexFiles bool

var indexCmd = &cobra.Command{
	Use:   "index <workspace>",
	Short: "Build the locale index once and print it",
	Long: `Builds the locale index of a workspace the way the server does and
prints one line per key: key, value and file:line.

Examples:
  i18nlens index .
  i18nlens index --files ./web`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexFiles, "files", false, "print the dictionary files instead of the keys")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}

	snap, err := locale.NewBuilder(cfg.WorkspaceRoot, cfg.LocaleGlobs, locale.NewIndex()).Build(context.Background())
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	out := cmd.OutOrStdout()
	if indexFiles {
		files := make([]string, 0, len(snap.Files))
		for f := range snap.Files {
			files = append(files, f)
		}
		slices.Sort(files)
		for _, f := range files {
			fmt.Fprintln(out, relative(cfg.WorkspaceRoot, f))
		}
		return nil
	}

	for _, key := range snap.Keys() {
		e := snap.Entries[key]
		fmt.Fprintf(out, "%s\t%s\t%s:%d\n", key, e.Value, relative(cfg.WorkspaceRoot, e.File), e.Range.Start.Line+1)
	}
	return nil
}

func relative(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
