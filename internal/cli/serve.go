package cli

import (
	"github.com/shinyvision/i18nlens/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the language server protocol over stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	s := server.NewServer()
	defer s.Close()
	s.Run()
	return nil
}
