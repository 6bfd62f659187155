package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/sponsored-bundle/submitter"
)

var (
	runOverrides submitter.Overrides

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "build, simulate and submit the sponsored bundle",
		Long: `Build the bundle for the configured plan, simulate it and resubmit it on every
new block until it is included or its nonces are invalidated.

Use --dry-run to stop after the first simulation. Settings are read from --config and
then from the environment (PRIVATE_KEY_EXECUTOR, PRIVATE_KEY_SPONSOR,
FLASHBOTS_RELAY_SIGNING_KEY, RECIPIENT, ETHEREUM_RPC_URL, ETHEREUM_WS_URL,
FLASHBOTS_RELAY_URL, DRY_RUN).`,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(submitter.RunWithConfig(config, runOverrides))
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOverrides.DryRun, "dry-run", false, "simulate once and exit without sending")
	runCmd.Flags().BoolVar(&runOverrides.Dump, "dump", false, "pretty print the signed bundle")
}
