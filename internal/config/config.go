package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all jellylink configuration
type Config struct {
	Roots     []RootConfig   `toml:"roots"`
	Broadcast map[string]int `toml:"broadcast"`
	Parsing   ParsingConfig  `toml:"parsing"`
	Links     LinkConfig     `toml:"links"`
	Run       RunConfig      `toml:"run"`
	Daemon    DaemonConfig   `toml:"daemon"`
	Logging   LoggingConfig  `toml:"logging"`
}

// RootConfig pairs an input root (title directories) with the output root
// that receives the normalized links
type RootConfig struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
}

// ParsingConfig selects between the filename parsing variants
type ParsingConfig struct {
	Postfixes       []string `toml:"postfixes"`        // trailing tags stripped from compact names
	SeasonSource    string   `toml:"season_source"`    // title, stripped_base
	TieBreak        string   `toml:"tie_break"`        // lexical, first_seen
	NormalizeTitles bool     `toml:"normalize_titles"` // NFC-normalize titles
}

// LinkConfig controls how links are materialized
type LinkConfig struct {
	Mode    string `toml:"mode"`     // symlink, relative, hardlink
	GroupBy string `toml:"group_by"` // title, source_dir
	Lock    bool   `toml:"lock"`     // hold a lock on the output root while running
}

// RunConfig holds per-run behavior
type RunConfig struct {
	Workers int  `toml:"workers"`
	Debug   bool `toml:"debug"`
}

// DaemonConfig holds watch daemon settings
type DaemonConfig struct {
	Debounce string `toml:"debounce"` // Go duration, e.g. "5s"
	Reports  bool   `toml:"reports"`  // write a report file after every run
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console, json
	File   string `toml:"file"`   // optional log file, empty = stderr only
}

// DefaultBroadcast returns the built-in broadcast priority table
func DefaultBroadcast() map[string]int {
	return map[string]int{
		"ATX":  3,
		"BS11": 3,
		"MX":   -2,
	}
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Roots:     []RootConfig{},
		Broadcast: DefaultBroadcast(),
		Parsing: ParsingConfig{
			Postfixes:    []string{"HD", "CS", "BSD"},
			SeasonSource: "title",
			TieBreak:     "lexical",
		},
		Links: LinkConfig{
			Mode:    "symlink",
			GroupBy: "title",
			Lock:    true,
		},
		Run: RunConfig{
			Workers: 1,
		},
		Daemon: DaemonConfig{
			Debounce: "5s",
			Reports:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}

	return filepath.Join(configDir, "jellylink", "config.toml"), nil
}

// Load reads the default config file, creating it with defaults if it doesn't exist
func Load() (*Config, error) {
	configFile, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configFile)
}

// LoadFrom reads the config at path, creating it with defaults if it doesn't exist
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveTo(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Sections missing from the file keep their defaults. The broadcast
	// table is replaced wholesale when present rather than merged.
	cfg := DefaultConfig()
	cfg.Broadcast = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Broadcast == nil {
		if md.IsDefined("broadcast") {
			cfg.Broadcast = map[string]int{}
		} else {
			cfg.Broadcast = DefaultBroadcast()
		}
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Save writes the config to the default location
func Save(cfg *Config) error {
	configFile, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, configFile)
}

// SaveTo writes the config to path, creating parent directories as needed
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

var postfixTokenPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Validate checks if the config is valid. Root paths are not checked for
// existence here; a missing input root is reported when it is run.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("no roots configured")
	}
	for i, root := range c.Roots {
		if strings.TrimSpace(root.Input) == "" {
			return fmt.Errorf("roots[%d]: input path is empty", i)
		}
		if strings.TrimSpace(root.Output) == "" {
			return fmt.Errorf("roots[%d]: output path is empty", i)
		}
		if filepath.Clean(root.Input) == filepath.Clean(root.Output) {
			return fmt.Errorf("roots[%d]: input and output must differ: %s", i, root.Input)
		}
	}

	for _, token := range c.Parsing.Postfixes {
		if !postfixTokenPattern.MatchString(token) {
			return fmt.Errorf("invalid postfix token: %q (must be alphanumeric)", token)
		}
	}

	if err := oneOf("parsing.season_source", c.Parsing.SeasonSource, "title", "stripped_base"); err != nil {
		return err
	}
	if err := oneOf("parsing.tie_break", c.Parsing.TieBreak, "lexical", "first_seen"); err != nil {
		return err
	}
	if err := oneOf("links.mode", c.Links.Mode, "symlink", "relative", "hardlink"); err != nil {
		return err
	}
	if err := oneOf("links.group_by", c.Links.GroupBy, "title", "source_dir"); err != nil {
		return err
	}
	if err := oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("logging.format", strings.ToLower(c.Logging.Format), "console", "json"); err != nil {
		return err
	}

	if c.Run.Workers < 1 {
		return fmt.Errorf("invalid run.workers: %d (must be at least 1)", c.Run.Workers)
	}

	if _, err := c.DebounceDuration(); err != nil {
		return err
	}

	return nil
}

// DebounceDuration parses the daemon debounce interval
func (c *Config) DebounceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Daemon.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid daemon.debounce %q: %w", c.Daemon.Debounce, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid daemon.debounce %q: must not be negative", c.Daemon.Debounce)
	}
	return d, nil
}

// AddRoot adds an input/output root pair
func (c *Config) AddRoot(input, output string) error {
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("input path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path is not a directory: %s", input)
	}

	for _, existing := range c.Roots {
		if existing.Input == input && existing.Output == output {
			return fmt.Errorf("root already configured: %s -> %s", input, output)
		}
	}

	c.Roots = append(c.Roots, RootConfig{Input: input, Output: output})
	return nil
}

// RemoveRoot removes every root pair reading from input
func (c *Config) RemoveRoot(input string) error {
	kept := c.Roots[:0]
	for _, existing := range c.Roots {
		if existing.Input != input {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(c.Roots) {
		return fmt.Errorf("root not found: %s", input)
	}
	c.Roots = kept
	return nil
}

// OutputRoots returns the distinct output roots in configuration order
func (c *Config) OutputRoots() []string {
	seen := make(map[string]bool)
	var out []string
	for _, root := range c.Roots {
		if seen[root.Output] {
			continue
		}
		seen[root.Output] = true
		out = append(out, root.Output)
	}
	return out
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (must be one of %s)", field, value, strings.Join(allowed, ", "))
}
