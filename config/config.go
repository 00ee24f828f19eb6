package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the krnlc configuration
type Config struct {
	Compiler CompilerConfig `mapstructure:"compiler"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CompilerConfig selects the GLSL to SPIR-V compiler.
type CompilerConfig struct {
	GLSLang string   `mapstructure:"glslang"`
	Args    []string `mapstructure:"args"`
	// WorkDir receives the intermediate .comp and .spv files. Empty selects
	// a temporary directory that is removed afterwards.
	WorkDir string `mapstructure:"work_dir"`
}

type OutputConfig struct {
	// Package defaults to the name of the kernel directory.
	Package    string `mapstructure:"package"`
	ImportPath string `mapstructure:"import_path"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compiler: CompilerConfig{
			GLSLang: "glslangValidator",
			Args:    []string{"--target-env", "vulkan1.2", "-V"},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// FlagKeys maps command-line flag names to the configuration keys they
// override.
var FlagKeys = map[string]string{
	"package":     "output.package",
	"import-path": "output.import_path",
	"glslang":     "compiler.glslang",
	"work-dir":    "compiler.work_dir",
	"log-level":   "logging.level",
	"log-file":    "logging.file",
}

// Load loads configuration from file, environment, and defaults. Without
// an explicit file, krnl.yaml is looked up in the working directory; a
// missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	return LoadWithFlags(cfgFile, nil)
}

// LoadWithFlags is like Load, with the flags named in FlagKeys taking
// precedence when they were set on the command line.
func LoadWithFlags(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("krnl")
	}

	v.SetEnvPrefix("KRNLC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Compiler.GLSLang == "" {
		return errors.New("compiler.glslang must name the GLSL compiler")
	}
	for _, arg := range c.Compiler.Args {
		if arg == "-o" {
			return errors.New("compiler.args must not set the output file, krnlc passes -o itself")
		}
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Compiler.WorkDir = expandPath(c.Compiler.WorkDir)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("compiler.glslang", cfg.Compiler.GLSLang)
	v.SetDefault("compiler.args", cfg.Compiler.Args)
	v.SetDefault("compiler.work_dir", cfg.Compiler.WorkDir)

	v.SetDefault("output.package", cfg.Output.Package)
	v.SetDefault("output.import_path", cfg.Output.ImportPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
