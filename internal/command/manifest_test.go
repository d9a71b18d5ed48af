package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"goatbot/internal/domain"
)

func TestManifest_Apply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	content := `
commands:
  ping:
    cooldown: 10
    role: 1
    aliases: [pg]
  nosuch:
    cooldown: 1
disabled: [say]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	r := NewRegistry(testLogger())
	if err := RegisterBuiltins(r, BuiltinDeps{StartTime: time.Now(), Version: "test"}); err != nil {
		t.Fatal(err)
	}
	m.Apply(r, testLogger())

	d := r.Resolve("ping")
	if d == nil {
		t.Fatal("ping gone after manifest apply")
	}
	if d.CooldownSeconds != 10 {
		t.Errorf("ping cooldown = %d, want 10", d.CooldownSeconds)
	}
	if d.RequiredRole != domain.RoleThreadAdmin {
		t.Errorf("ping role = %d, want 1", d.RequiredRole)
	}
	if r.Resolve("pg") == nil {
		t.Error("manifest alias pg not resolvable")
	}
	if r.Resolve("latency") != nil {
		t.Error("old alias latency should be replaced by the manifest set")
	}

	if r.Resolve("say") != nil {
		t.Error("say should be disabled by manifest")
	}
}

func TestManifest_RejectsOutOfRangeRole(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := RegisterBuiltins(r, BuiltinDeps{StartTime: time.Now(), Version: "test"}); err != nil {
		t.Fatal(err)
	}

	bad := 7
	m := &Manifest{Commands: map[string]ManifestEntry{"ping": {Role: &bad}}}
	m.Apply(r, testLogger())

	if d := r.Resolve("ping"); d.RequiredRole != domain.RoleEveryone {
		t.Errorf("role = %d, want unchanged 0", d.RequiredRole)
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}
