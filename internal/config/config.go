package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for goatbot.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	Poll      PollConfig      `json:"poll"`
	Accounts  []AccountConfig `json:"accounts"`
	Store     StoreConfig     `json:"store"`
	Commands  CommandsConfig  `json:"commands"`
	Dashboard DashboardConfig `json:"dashboard"`
	Logging   LoggingConfig   `json:"logging"`
}

type BotConfig struct {
	Prefix                 string         `json:"prefix"`
	AdminIDs               FlexStringList `json:"adminIds"`
	DefaultCooldownSeconds int            `json:"defaultCooldownSeconds"`
}

// PollConfig tunes the inbox polling loop. All intervals are milliseconds.
type PollConfig struct {
	FloorMs       int `json:"floorMs"`
	CeilingMs     int `json:"ceilingMs"`
	JitterMs      int `json:"jitterMs"`
	DedupCacheCap int `json:"dedupCacheCap"`
}

type AccountConfig struct {
	Username    string `json:"username"`
	SessionFile string `json:"sessionFile"`
	Disabled    bool   `json:"disabled,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type CommandsConfig struct {
	// ManifestPath points to an optional YAML file overriding per-command
	// role, aliases and cooldown.
	ManifestPath string   `json:"manifestPath,omitempty"`
	Disabled     []string `json:"disabled,omitempty"`
}

type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (user IDs show up as either, depending on how the
// config was written).
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.goatbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".goatbot"
	}
	return filepath.Join(home, ".goatbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	for i := range cfg.Accounts {
		cfg.Accounts[i].SessionFile = expandPath(cfg.Accounts[i].SessionFile)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Bot.Prefix == "" {
		errs = append(errs, "bot.prefix must not be empty")
	}
	if strings.ContainsAny(cfg.Bot.Prefix, " \t\n") {
		errs = append(errs, "bot.prefix must not contain whitespace")
	}
	if cfg.Bot.DefaultCooldownSeconds < 0 {
		errs = append(errs, "bot.defaultCooldownSeconds must be >= 0")
	}

	if cfg.Poll.FloorMs < 100 {
		errs = append(errs, "poll.floorMs must be >= 100")
	}
	if cfg.Poll.CeilingMs < cfg.Poll.FloorMs {
		errs = append(errs, "poll.ceilingMs must be >= poll.floorMs")
	}
	if cfg.Poll.JitterMs < 0 {
		errs = append(errs, "poll.jitterMs must be >= 0")
	}
	if cfg.Poll.DedupCacheCap < 2 {
		errs = append(errs, "poll.dedupCacheCap must be >= 2")
	}

	if cfg.Dashboard.Port < 0 || cfg.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be between 0 and 65535")
	}

	seen := make(map[string]bool)
	for i, acct := range cfg.Accounts {
		if acct.Username == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d]: username must not be empty", i))
		}
		if seen[acct.Username] {
			errs = append(errs, fmt.Sprintf("accounts[%d]: duplicate username %q", i, acct.Username))
		}
		seen[acct.Username] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// expandPath expands a leading ~/ to the user's home directory.
func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
