package cmd

import (
	"os"

	"github.com/shawn/vesta-provisioner/internal/cli/api"
	"github.com/spf13/cobra"
)

var (
	version   string
	commit    string
	buildDate string

	// Global flags
	serverURL    string
	apiToken     string
	outputFormat string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "vestactl",
	Short: "Vesta provisioner CLI",
	Long: `vestactl manages hosting accounts through the Vesta provisioner API.

It creates, inspects, suspends and cancels services on the configured
Vesta control panels, and mints API tokens and passwords.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", getEnvOrDefault("VESTACTL_URL", "http://localhost:8080"), "Provisioner API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("VESTACTL_TOKEN"), "Bearer token for the API")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "Output format: json|table")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newPasswordCmd())
}

func Execute() error {
	// Flags are parsed after the commands are built, so the client is
	// pointed at --url/--token just before any command runs.
	client := api.NewHTTPClient(serverURL, apiToken)
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		client.Configure(serverURL, apiToken)
	}

	rootCmd.AddCommand(newServiceCmd(client))
	rootCmd.AddCommand(newServersCmd(client))

	return rootCmd.Execute()
}

func SetVersion(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
