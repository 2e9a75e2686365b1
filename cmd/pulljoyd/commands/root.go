package commands

import (
	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file.
	configPath string

	// envFile is the dotenv file read before the environment.
	envFile string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the daemon.
var rootCmd = &cobra.Command{
	Use:   "pulljoyd",
	Short: "Pulljoy CI gatekeeper for GitHub pull requests",
	Long: `Pulljoy holds CI for pull requests until a collaborator approves
the exact commit, then mirrors it into the base repository so CI runs
with the base repository's secrets.

Run "pulljoyd serve" to receive webhooks. The other commands inspect and
repair the state store.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to a YAML config file (default: $PULLJOY_CONFIG_PATH)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", "",
		"Path to a dotenv file (default: .env)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
