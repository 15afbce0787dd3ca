package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/samplecast/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "samplecast",
	Short: "Relay RTPS data samples to subscribers",
	Long: `samplecast accepts RTPS DATA submessages from publishers, keeps a history
of every instance they describe and pushes instance updates to subscribers.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(InspectCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
