package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the keeply server
var rootCmd = &cobra.Command{
	Use:   "keeply-server",
	Short: "Backend-for-frontend for the keeply organizer app",
	Long: `keeply-server exposes the REST API consumed by the keeply web frontend:
local accounts and sessions, and mail/calendar integrations with Google
(Gmail, Calendar) and Microsoft (Outlook) on behalf of each user.

Third-party access is authorized through per-user OAuth grants; tokens are
stored server-side and refreshed on demand.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "keeply-server version %s\n" .Version}}`)

	// If no subcommand is provided, run the server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
