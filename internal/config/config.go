package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"mvdan.cc/sh/v3/shell"

	"omnipkg/internal/executor"
)

// Config represents the complete omnipkg configuration.
type Config struct {
	General  GeneralConfig            `toml:"general"`
	Output   OutputConfig             `toml:"output"`
	Managers map[string]ManagerConfig `toml:"managers"`
	Aliases  map[string]string        `toml:"aliases"`
}

// GeneralConfig contains general omnipkg settings.
type GeneralConfig struct {
	// ManagerPriority orders managers in merged listings and picks the
	// default manager when a package is available from several.
	ManagerPriority []string `toml:"manager_priority"`

	// MaxParallelOperations bounds how many install/update/uninstall
	// operations run at once. 1 serializes them.
	MaxParallelOperations int `toml:"max_parallel_operations"`

	// OutputLines is the number of raw output lines kept per operation.
	OutputLines int `toml:"output_lines"`

	// SearchRetries is how often a failed search or update listing is
	// retried before the manager is reported finished.
	SearchRetries int `toml:"search_retries"`

	// MaxParallelQueries bounds how many managers are queried at once by
	// a listing or search. 0 queries them all together.
	MaxParallelQueries int `toml:"max_parallel_queries"`

	// AutoConfirm skips confirmation prompts when true (like -y flag).
	AutoConfirm bool `toml:"auto_confirm"`

	// DryRun shows what would happen without executing when true.
	DryRun bool `toml:"dry_run"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	// Color enables colored output (respects NO_COLOR env var).
	Color bool `toml:"color"`

	// Unicode enables unicode symbols in output.
	Unicode bool `toml:"unicode"`

	// Verbose enables detailed output.
	Verbose bool `toml:"verbose"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// ManagerConfig contains per-manager settings. Zero values keep the
// manager's built-in defaults.
type ManagerConfig struct {
	// Enabled overrides the platform default when set.
	Enabled *bool `toml:"enabled"`

	// Path is the executable to run instead of the one found on PATH.
	Path string `toml:"path"`

	// ExtraArgs is appended to every invocation, shell-quoted
	// (e.g. `--source "my feed"`).
	ExtraArgs string `toml:"extra_args"`

	// Timeout bounds the whole process.
	Timeout Duration `toml:"timeout"`

	// IdleTimeout bounds the time between two output lines.
	IdleTimeout Duration `toml:"idle_timeout"`

	// CacheTTL overrides how long the installed listing stays fresh.
	CacheTTL Duration `toml:"cache_ttl"`

	// Encoding names the console code page the tool writes, e.g. "cp850".
	Encoding string `toml:"encoding"`

	// Remote is the default remote to install from (flatpak).
	Remote string `toml:"remote"`

	// AllowClassic permits snaps with classic confinement (snap).
	AllowClassic bool `toml:"allow_classic"`
}

// Duration is a time.Duration written as "90s" or "2h" in the config file.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Args splits ExtraArgs the way a POSIX shell would, without expanding
// anything.
func (m ManagerConfig) Args() ([]string, error) {
	if m.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shell.Fields(m.ExtraArgs, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("extra_args: %w", err)
	}
	return args, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			ManagerPriority:       []string{"winget", "scoop", "chocolatey", "flatpak", "snap", "pip", "npm"},
			MaxParallelOperations: 1,
			OutputLines:           200,
			SearchRetries:         1,
			AutoConfirm:           false,
			DryRun:                false,
		},
		Output: OutputConfig{
			Color:    true,
			Unicode:  true,
			Verbose:  false,
			LogLevel: "warn",
		},
		Managers: map[string]ManagerConfig{},
		Aliases:  map[string]string{},
	}
}

// Load loads the configuration from the default path.
// If the config file doesn't exist, it returns the default configuration.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads the configuration from a specific path.
// If the config file doesn't exist, it returns the default configuration.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	// Parse the config file
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the engine cannot work with.
func (c *Config) Validate() error {
	if c.General.MaxParallelOperations < 1 {
		return fmt.Errorf("general.max_parallel_operations must be at least 1")
	}
	if c.General.OutputLines < 1 {
		return fmt.Errorf("general.output_lines must be at least 1")
	}
	if c.General.SearchRetries < 0 {
		return fmt.Errorf("general.search_retries must not be negative")
	}
	if c.General.MaxParallelQueries < 0 {
		return fmt.Errorf("general.max_parallel_queries must not be negative")
	}
	switch c.Output.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("output.log_level %q is not one of debug, info, warn, error", c.Output.LogLevel)
	}
	for name, m := range c.Managers {
		if _, err := m.Args(); err != nil {
			return fmt.Errorf("managers.%s.%w", name, err)
		}
		if _, err := executor.LookupEncoding(m.Encoding); err != nil {
			return fmt.Errorf("managers.%s.encoding: %w", name, err)
		}
		if m.Timeout.Duration < 0 || m.IdleTimeout.Duration < 0 || m.CacheTTL.Duration < 0 {
			return fmt.Errorf("managers.%s: durations must not be negative", name)
		}
	}
	return nil
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// ResolveAlias returns the actual package id for an alias, or the original id if no alias exists.
func (c *Config) ResolveAlias(pkg string) string {
	if alias, ok := c.Aliases[pkg]; ok {
		return alias
	}
	return pkg
}

// ResolveAliases resolves all aliases in a list of package ids.
func (c *Config) ResolveAliases(packages []string) []string {
	resolved := make([]string, len(packages))
	for i, pkg := range packages {
		resolved[i] = c.ResolveAlias(pkg)
	}
	return resolved
}

// GetManagerConfig returns the configuration for a specific manager.
// Returns an empty config if no configuration exists for the manager.
func (c *Config) GetManagerConfig(name string) ManagerConfig {
	if cfg, ok := c.Managers[name]; ok {
		return cfg
	}
	return ManagerConfig{}
}

// ShouldUseColor returns true if colored output should be used.
// Respects the NO_COLOR environment variable.
func (c *Config) ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return c.Output.Color
}
