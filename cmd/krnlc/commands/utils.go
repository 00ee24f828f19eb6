package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/notargets/krnl/runner/builder"
	"github.com/notargets/krnl/utils"
)

// dirArg returns the kernel directory argument, defaulting to ".".
func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// packageName returns the configured package name or one derived from dir.
func packageName(dir string) (string, error) {
	if cfg.Output.Package != "" {
		return cfg.Output.Package, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		}
		return -1
	}, filepath.Base(abs))
	if name == "" || unicode.IsDigit(rune(name[0])) {
		return "", fmt.Errorf("cannot derive a package name from %s, use --package", abs)
	}
	return name, nil
}

// loadBuilder analyzes every kernel source of dir.
func loadBuilder(dir string) (*builder.Builder, error) {
	pkg, err := packageName(dir)
	if err != nil {
		return nil, err
	}
	b, err := builder.NewBuilder(builder.Config{ImportPath: cfg.Output.ImportPath, Package: pkg})
	if err != nil {
		return nil, err
	}
	mods, err := b.AddDir(dir)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("no .krnl files in %s", dir)
	}
	for _, mod := range mods {
		utils.WithFields(logrus.Fields{
			"module":  mod.Name,
			"file":    mod.File,
			"kernels": len(mod.Kernels),
		}).Debug("analyzed module")
	}
	return b, nil
}

// writeGenerated writes a generated file, skipping the write when the
// content is unchanged.
func writeGenerated(path string, src []byte) error {
	if old, err := os.ReadFile(path); err == nil && string(old) == string(src) {
		utils.WithField("file", path).Debug("unchanged")
		return nil
	}
	if err := os.WriteFile(path, src, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	utils.WithField("file", path).Info("wrote")
	return nil
}
