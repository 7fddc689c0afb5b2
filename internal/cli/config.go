package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/calpha-lang/calpha/internal/codegen/regalloc"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/vm"
)

// Color modes for diagnostic output.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config represents the configuration shared by the tools.
type Config struct {
	Verbose bool `json:"verbose"`
	Debug   bool `json:"debug"`

	// Registers is the size of the register pool used by the code generator.
	Registers int `json:"registers"`
	// ABIFile replaces the built-in syscall table when set.
	ABIFile string `json:"abi_file"`
	// Color is one of auto, always or never.
	Color string `json:"color"`
	// MaxSteps bounds program execution with -run.
	MaxSteps int64 `json:"max_steps"`
	// Jobs bounds the number of units compiled concurrently.
	Jobs int `json:"jobs"`
	// OutputDir receives the .lir files; empty writes next to the source.
	OutputDir string `json:"output_dir"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Registers: regalloc.DefaultPoolSize,
		Color:     ColorAuto,
		MaxSteps:  vm.DefaultMaxSteps,
		Jobs:      runtime.GOMAXPROCS(0),
	}
}

// LoadConfig loads configuration from file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Registers < regalloc.MinPoolSize || c.Registers > lir.NumGeneral {
		return fmt.Errorf("registers must be between %d and %d, got %d", regalloc.MinPoolSize, lir.NumGeneral, c.Registers)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("color must be auto, always or never, got %q", c.Color)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	return nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
