package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "codepilot",
		Short:         "Coding assistant backend",
		Long:          "codepilot serves the project workspace, the rule-based coding assistant and its token metering.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (json or yaml); defaults to $CODEPILOT_CONFIG or config.json")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newMigrateCmd(&cfgPath),
		newPlansCmd(&cfgPath),
		newUsersCmd(&cfgPath),
		newTokensCmd(&cfgPath),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("codepilot %s\n", Version))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
