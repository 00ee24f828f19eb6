package commands

import (
	"github.com/spf13/cobra"

	"github.com/notargets/krnl"
	"github.com/notargets/krnl/config"
	"github.com/notargets/krnl/utils"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "krnlc",
	Short: "Compile krnl kernel sources",
	Long: `krnlc turns the *.krnl kernel sources of a Go package into typed Go
dispatch bindings and a SPIR-V cache embedded in the package.

Run "krnlc generate" after editing kernel signatures and "krnlc compile"
to rebuild the cache.`,
	Version:           krnl.Version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./krnl.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "quiet mode")

	// Bound to configuration keys by config.LoadWithFlags
	flags.String("package", "", "Go package name of the generated files (default is the directory name)")
	flags.String("import-path", "", "Go import path of the kernel package, prefixes kernel names")
	flags.String("glslang", "", "GLSL to SPIR-V compiler")
	flags.String("work-dir", "", "directory for intermediate shader files")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-file", "", "also log to this file")
}

// initConfig loads the configuration and sets up logging before any
// subcommand runs.
func initConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	level := c.Logging.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	if err := utils.InitLogging(level, c.Logging.File, c.Logging.Console); err != nil {
		return err
	}
	utils.WithField("config", cfgFile).Debug("configuration loaded")
	cfg = c
	return nil
}
