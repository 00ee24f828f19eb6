package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notargets/krnl"
	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/runner/builder"
	"github.com/notargets/krnl/utils"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "List the kernels of an embedded cache",
	Long: `Decode the krnl_cache.go of dir (default ".") and list every compiled
kernel with its interface, required features and program size.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := filepath.Join(dirArg(args), builder.CacheFileName)
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	version, data, err := builder.ParseCacheFile(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c, err := cache.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := cache.CheckVersion(version, krnl.Version); err != nil {
		utils.Logger().Warn(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cache version %s, %d kernels\n", version, len(c.Kernels))
	if len(c.Kernels) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KERNEL\tFEATURES\tPROGRAM")
	for _, desc := range c.Kernels {
		fmt.Fprintf(w, "%s\t%s\t%d bytes\n", desc.Describe(), desc.Features, len(desc.Program))
	}
	return w.Flush()
}
