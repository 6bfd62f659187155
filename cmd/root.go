package cmd

import (
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/AvaProtocol/sponsored-bundle/core/config"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = appconfig.DefaultConfigPath
	rootCmd = &cobra.Command{
		Use:   "sponsored-bundle",
		Short: "Sponsored Flashbots bundle submitter",
		Long: `Fund an executor account from a sponsor and run an action plan for it
in a single private bundle, resubmitted on every block until it lands.

Such as "sponsored-bundle run --dry-run" or "sponsored-bundle plans"
`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", appconfig.DefaultConfigPath, "Path to config file")
}
