package command

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"goatbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func noopHandler(ctx context.Context, inv *domain.Invocation) error { return nil }

func TestRegistry_ResolveByNameCaseInsensitive(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&domain.CommandDescriptor{Name: "Ping", Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"ping", "PING", "Ping"} {
		if d := r.Resolve(name); d == nil {
			t.Errorf("Resolve(%q) = nil", name)
		}
	}
}

func TestRegistry_ResolveAlias(t *testing.T) {
	r := NewRegistry(testLogger())
	err := r.Register(&domain.CommandDescriptor{
		Name:    "ping",
		Aliases: []string{"latency", "P"},
		Handler: noopHandler,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := r.Resolve("LATENCY")
	if d == nil || d.Name != "ping" {
		t.Errorf("alias resolve = %+v, want ping", d)
	}
	if d := r.Resolve("p"); d == nil || d.Name != "ping" {
		t.Error("single-letter alias should resolve")
	}
}

func TestRegistry_NoFuzzyMatching(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&domain.CommandDescriptor{Name: "ping", Handler: noopHandler})

	for _, name := range []string{"pin", "pingg", "pi"} {
		if d := r.Resolve(name); d != nil {
			t.Errorf("Resolve(%q) = %v, want nil (no partial matching)", name, d.Name)
		}
	}
}

func TestRegistry_DuplicateAndConflicts(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&domain.CommandDescriptor{Name: "ping", Handler: noopHandler}); err != nil {
		t.Fatal(err)
	}

	if err := r.Register(&domain.CommandDescriptor{Name: "PING", Handler: noopHandler}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := r.Register(&domain.CommandDescriptor{Name: "other", Aliases: []string{"ping"}, Handler: noopHandler}); err == nil {
		t.Error("alias shadowing a command name should be rejected")
	}
	if err := r.Register(&domain.CommandDescriptor{Name: "", Handler: noopHandler}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := r.Register(&domain.CommandDescriptor{Name: "broken"}); err == nil {
		t.Error("nil handler should be rejected")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&domain.CommandDescriptor{Name: "ping", Aliases: []string{"latency"}, Handler: noopHandler})

	r.Unregister("ping")
	if r.Resolve("ping") != nil {
		t.Error("ping still resolvable after Unregister")
	}
	if r.Resolve("latency") != nil {
		t.Error("alias still resolvable after Unregister")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(testLogger())
	err := RegisterBuiltins(r, BuiltinDeps{StartTime: time.Now(), Version: "test"})
	if err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	for _, name := range []string{"ping", "help", "uptime", "info", "say", "userinfo", "admin", "role", "ban", "unban"} {
		if r.Resolve(name) == nil {
			t.Errorf("builtin %q not registered", name)
		}
	}

	for _, name := range []string{"ban", "role"} {
		if d := r.Resolve(name); d.RequiredRole != domain.RoleBotAdmin {
			t.Errorf("%s role = %d, want bot admin", name, d.RequiredRole)
		}
	}
	if d := r.Resolve("ping"); d.CooldownSeconds != 3 {
		t.Errorf("ping cooldown = %d, want 3", d.CooldownSeconds)
	}
}

// roleStore is a minimal ProfileStore for exercising profile builtins.
type roleStore struct {
	roles map[string]int
}

func (s *roleStore) GetSenderIdentity(_ context.Context, userID string) (domain.SenderIdentity, error) {
	return domain.SenderIdentity{ID: userID, Role: s.roles[userID]}, nil
}

func (s *roleStore) SetRole(_ context.Context, userID string, role int) error {
	s.roles[userID] = role
	return nil
}

func (s *roleStore) SetBanned(context.Context, string, string) error { return nil }
func (s *roleStore) ClearBan(context.Context, string) error          { return nil }

func (s *roleStore) IsThreadAdmin(context.Context, string, string) (bool, error) { return false, nil }
func (s *roleStore) SetThreadAdmins(context.Context, string, []string) error     { return nil }
func (s *roleStore) FirstContact(context.Context, string) (bool, error)          { return false, nil }
func (s *roleStore) LogAudit(context.Context, domain.AuditRecord) error          { return nil }

// replyRecorder captures handler replies.
type replyRecorder struct {
	replies []string
}

func (r *replyRecorder) Reply(_ context.Context, text string) error {
	r.replies = append(r.replies, text)
	return nil
}

func (r *replyRecorder) React(context.Context, string) error { return nil }
func (r *replyRecorder) Typing(context.Context, bool) error  { return nil }

func TestRoleBuiltin(t *testing.T) {
	r := NewRegistry(testLogger())
	store := &roleStore{roles: map[string]int{"u5": domain.RoleThreadAdmin}}
	if err := RegisterBuiltins(r, BuiltinDeps{StartTime: time.Now(), Version: "test", Store: store}); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	desc := r.Resolve("role")
	if desc == nil {
		t.Fatal("role builtin not registered")
	}

	run := func(args ...string) *replyRecorder {
		t.Helper()
		rec := &replyRecorder{}
		inv := &domain.Invocation{Args: args, Prefix: "!", Respond: rec}
		if err := desc.Handler(context.Background(), inv); err != nil {
			t.Fatalf("role %v: %v", args, err)
		}
		return rec
	}

	rec := run("u9", "2")
	if store.roles["u9"] != domain.RoleBotAdmin {
		t.Errorf("role for u9 = %d, want 2", store.roles["u9"])
	}
	if len(rec.replies) != 1 || rec.replies[0] != "Set u9 to bot admin" {
		t.Errorf("replies = %v", rec.replies)
	}

	rec = run("u5")
	if len(rec.replies) != 1 || rec.replies[0] != "Role for u5: thread admin" {
		t.Errorf("view replies = %v", rec.replies)
	}

	run("u9", "7")
	if store.roles["u9"] != domain.RoleBotAdmin {
		t.Errorf("out-of-range role overwrote stored role: %d", store.roles["u9"])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{25 * time.Hour, "1d 1h 0s"},
		{0, "0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
