package commands

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/notargets/krnl"
	"github.com/notargets/krnl/runner/builder"
	"github.com/notargets/krnl/utils"
)

var generateCmd = &cobra.Command{
	Use:   "generate [dir]",
	Short: "Generate Go bindings for the kernels of a directory",
	Long: `Analyze every *.krnl file of dir (default ".") and write one
krnl_<module>.go bindings file per module.

An empty krnl_cache.go is written when none exists, so the package builds
before "krnlc compile" has run. Kernels report "not compiled" until then.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	_, err := generate(dirArg(args))
	return err
}

// generate writes the bindings of dir and returns the builder holding the
// analyzed modules.
func generate(dir string) (*builder.Builder, error) {
	b, err := loadBuilder(dir)
	if err != nil {
		return nil, err
	}

	files, err := b.HostFiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeGenerated(filepath.Join(dir, name), files[name]); err != nil {
			return nil, err
		}
	}

	cachePath := filepath.Join(dir, builder.CacheFileName)
	if _, err := os.Stat(cachePath); errors.Is(err, fs.ErrNotExist) {
		src, err := builder.GenerateCacheFile(b.Config().Package, krnl.Version, "")
		if err != nil {
			return nil, err
		}
		if err := writeGenerated(cachePath, src); err != nil {
			return nil, err
		}
	}

	utils.WithFields(logrus.Fields{
		"dir":     dir,
		"modules": len(b.Modules),
		"kernels": len(b.Units()),
	}).Info("generated bindings")
	return b, nil
}
