package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/sponsored-bundle/core/plan"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "list the available action plans",
	Long:  `list every action plan that can be set as plan.name in the config file`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range plan.Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", name, plan.Usage(name))
		}
	},
}

func init() {
	rootCmd.AddCommand(plansCmd)
}
