package cli

import (
	"github.com/spf13/cobra"
)

func NewRetirectlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retirectl",
		Short: "retirectl orchestrates end-of-term device retirement: eligibility, review, and multi-system teardown.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdRun())
	cmd.AddCommand(NewCmdExport())
	cmd.AddCommand(NewCmdReport())
	cmd.AddCommand(NewCmdVersion())
	return cmd
}
