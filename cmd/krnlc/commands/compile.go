package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/notargets/krnl"
	"github.com/notargets/krnl/runner"
	"github.com/notargets/krnl/runner/builder"
	"github.com/notargets/krnl/utils"
)

var compileCmd = &cobra.Command{
	Use:   "compile [dir]",
	Short: "Compile the kernels of a directory into the embedded cache",
	Long: `Run generate, then emit GLSL for every kernel, compile it to SPIR-V
with the configured compiler (glslangValidator by default) and write the
encoded programs to krnl_cache.go.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	dir := dirArg(args)
	b, err := generate(dir)
	if err != nil {
		return err
	}

	workDir := cfg.Compiler.WorkDir
	if workDir == "" {
		if workDir, err = os.MkdirTemp("", "krnlc-"); err != nil {
			return err
		}
		defer os.RemoveAll(workDir)
	} else if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	programs := make(map[string][]byte)
	for _, u := range b.Units() {
		spirv, err := compileUnit(ctx, u, workDir)
		if err != nil {
			return err
		}
		programs[u.Desc.Name] = spirv
	}

	c, err := b.Cache(krnl.Version, programs)
	if err != nil {
		return err
	}
	src, err := b.CacheFile(c)
	if err != nil {
		return err
	}
	if err := writeGenerated(filepath.Join(dir, builder.CacheFileName), src); err != nil {
		return err
	}
	utils.WithFields(logrus.Fields{
		"dir":     dir,
		"kernels": len(c.Kernels),
	}).Info("compiled kernels")
	return nil
}

// compileUnit writes the GLSL of one kernel to workDir and compiles it to
// SPIR-V.
func compileUnit(ctx context.Context, u builder.KernelUnit, workDir string) ([]byte, error) {
	log := utils.WithFields(logrus.Fields{"module": u.Module.Name, "kernel": u.Meta.Name})

	glsl, err := u.Device()
	if err != nil {
		return nil, err
	}
	comp := filepath.Join(workDir, u.Stem()+".comp")
	spv := filepath.Join(workDir, u.Stem()+".spv")
	if err := os.WriteFile(comp, []byte(glsl), 0644); err != nil {
		return nil, err
	}

	args := append(append([]string{}, cfg.Compiler.Args...), "-o", spv, comp)
	log.WithField("command", cfg.Compiler.GLSLang+" "+strings.Join(args, " ")).Debug("compiling")
	out, err := exec.CommandContext(ctx, cfg.Compiler.GLSLang, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("compiling kernel `%s` of module %s: %w\n%s",
			u.Meta.Name, u.Module.Name, err, strings.TrimSpace(string(out)))
	}

	spirv, err := os.ReadFile(spv)
	if err != nil {
		return nil, err
	}
	if _, err := runner.SpecializeSPIRV(spirv, nil); err != nil {
		return nil, fmt.Errorf("compiler output for kernel `%s`: %w", u.Meta.Name, err)
	}
	log.WithField("bytes", len(spirv)).Debug("compiled")
	return spirv, nil
}
