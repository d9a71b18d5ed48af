package command

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the optional YAML file overriding per-command policy without
// recompiling. Absent fields keep the built-in values.
//
//	commands:
//	  ping:
//	    cooldown: 10
//	    role: 1
//	    aliases: [p]
//	disabled: [say]
type Manifest struct {
	Commands map[string]ManifestEntry `yaml:"commands"`
	Disabled []string                 `yaml:"disabled"`
}

type ManifestEntry struct {
	Role     *int     `yaml:"role,omitempty"`
	Cooldown *int     `yaml:"cooldown,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty"`
}

// LoadManifest parses the manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read command manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse command manifest %s: %w", path, err)
	}
	return &m, nil
}

// Apply overlays the manifest onto the registry: disables listed commands
// and overrides role, cooldown, and aliases where set. Entries naming
// unknown commands are logged and skipped.
func (m *Manifest) Apply(r *Registry, logger *slog.Logger) {
	for name, entry := range m.Commands {
		d := r.Resolve(name)
		if d == nil {
			logger.Warn("manifest references unknown command", "name", name)
			continue
		}
		if entry.Role != nil {
			if *entry.Role < 0 || *entry.Role > 2 {
				logger.Warn("manifest role out of range, ignored", "name", name, "role", *entry.Role)
			} else {
				d.RequiredRole = *entry.Role
			}
		}
		if entry.Cooldown != nil && *entry.Cooldown >= 0 {
			d.CooldownSeconds = *entry.Cooldown
		}
		if len(entry.Aliases) > 0 {
			// Re-register under the new alias set.
			r.Unregister(d.Name)
			d.Aliases = entry.Aliases
			if err := r.Register(d); err != nil {
				logger.Warn("manifest alias conflict", "name", name, "err", err)
			}
		}
	}

	for _, name := range m.Disabled {
		r.Unregister(name)
		logger.Info("command disabled by manifest", "name", name)
	}
}
