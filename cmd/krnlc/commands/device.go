package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/krnl/runner/builder"
)

var deviceKernel string

var deviceCmd = &cobra.Command{
	Use:   "device <file>",
	Short: "Print the generated GLSL of a kernel source",
	Long: `Analyze one *.krnl file and print the GLSL compute shader generated
for each of its kernels, or only for the kernel named by --kernel.`,
	Args: cobra.ExactArgs(1),
	RunE: runDevice,
}

func init() {
	deviceCmd.Flags().StringVarP(&deviceKernel, "kernel", "k", "", "only print this kernel")
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	mod, err := builder.ParseModule(args[0], string(src))
	if err != nil {
		return err
	}

	found := false
	for _, meta := range mod.Kernels {
		if deviceKernel != "" && meta.Name != deviceKernel {
			continue
		}
		glsl, err := builder.GenerateDevice(mod, meta)
		if err != nil {
			return err
		}
		if found {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		fmt.Fprint(cmd.OutOrStdout(), glsl)
		found = true
	}
	if !found && deviceKernel != "" {
		return fmt.Errorf("kernel `%s` not found in %s", deviceKernel, args[0])
	}
	return nil
}
