package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "refactorforge.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset
// flags that should not override the config. Use ParseFlags to populate
// this struct.
type CLIFlags struct {
	ConfigPath *string
	Workspace  *string
	LogLevel   *string
	HealthAddr *string
}

// ParseFlags parses command-line arguments into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("refactorforge", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	ws := fs.String("workspace", "", "workspace root directory")
	fs.StringVar(ws, "w", "", "workspace root directory (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	healthAddr := fs.String("health-addr", "", "health endpoint listen address")

	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	// Only set pointers for flags that were explicitly provided.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "workspace", "w":
			flags.Workspace = ws
		case "log-level":
			flags.LogLevel = logLevel
		case "health-addr":
			flags.HealthAddr = healthAddr
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV. The
// YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy: defaults < YAML <
// ENV < CLI flags, plus the YAML path that was used (for reloads).
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		return nil, yamlPath, err
	}

	if flags.Workspace != nil {
		cfg.Workspace.Root = *flags.Workspace
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.HealthAddr != nil {
		cfg.Server.HealthAddr = *flags.HealthAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, yamlPath, err
	}
	return cfg, yamlPath, nil
}

// LoadFrom builds a Config from defaults, the YAML file at path, and
// environment variables, then validates it.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(yamlPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Optional file.
	default:
		return nil, fmt.Errorf("read %s: %w", yamlPath, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays REFACTORFORGE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("REFACTORFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REFACTORFORGE_WORKSPACE"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("REFACTORFORGE_HEALTH_ADDR"); v != "" {
		cfg.Server.HealthAddr = v
	}
	if v := os.Getenv("REFACTORFORGE_OTEL_ENDPOINT"); v != "" {
		cfg.OTEL.Endpoint = v
		cfg.OTEL.Enabled = true
	}
	if v := os.Getenv("REFACTORFORGE_LSP_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LSP.DefaultTimeoutMS = n
		}
	}
}
