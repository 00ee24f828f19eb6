package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/notargets/krnl"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "krnlc v%s\n", krnl.Version)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
