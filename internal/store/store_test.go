package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"goatbot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUnknownSenderDefaults(t *testing.T) {
	s := testStore(t)
	id, err := s.GetSenderIdentity(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if id.ID != "stranger" || id.Role != domain.RoleEveryone || id.Banned {
		t.Fatalf("identity = %+v, want fresh default", id)
	}
}

func TestSetRoleRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SetRole(ctx, "u1", domain.RoleBotAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	id, err := s.GetSenderIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if id.Role != domain.RoleBotAdmin {
		t.Fatalf("role = %d, want %d", id.Role, domain.RoleBotAdmin)
	}

	if err := s.SetRole(ctx, "u1", 5); err == nil {
		t.Fatal("out-of-range role should be rejected")
	}
}

func TestBanAndClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SetBanned(ctx, "u1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	id, _ := s.GetSenderIdentity(ctx, "u1")
	if !id.Banned || id.BanReason != "spam" {
		t.Fatalf("identity = %+v, want banned with reason", id)
	}

	if err := s.ClearBan(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	id, _ = s.GetSenderIdentity(ctx, "u1")
	if id.Banned || id.BanReason != "" {
		t.Fatalf("identity = %+v, want unbanned", id)
	}
}

func TestBanPreservesRole(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SetRole(ctx, "u1", domain.RoleThreadAdmin)
	s.SetBanned(ctx, "u1", "abuse")

	id, _ := s.GetSenderIdentity(ctx, "u1")
	if id.Role != domain.RoleThreadAdmin {
		t.Fatalf("role = %d, ban should not reset it", id.Role)
	}
}

func TestThreadAdmins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.IsThreadAdmin(ctx, "t1", "u1")
	if err != nil || ok {
		t.Fatalf("unseen thread: ok=%v err=%v", ok, err)
	}

	if err := s.SetThreadAdmins(ctx, "t1", []string{"u1", "u2"}); err != nil {
		t.Fatalf("set admins: %v", err)
	}
	if ok, _ := s.IsThreadAdmin(ctx, "t1", "u1"); !ok {
		t.Fatal("u1 should be thread admin")
	}
	if ok, _ := s.IsThreadAdmin(ctx, "t1", "u3"); ok {
		t.Fatal("u3 should not be thread admin")
	}

	// Replacing the list drops previous admins.
	s.SetThreadAdmins(ctx, "t1", []string{"u3"})
	if ok, _ := s.IsThreadAdmin(ctx, "t1", "u1"); ok {
		t.Fatal("u1 should have been replaced")
	}
}

func TestFirstContactOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.FirstContact(ctx, "t1")
	if err != nil || !first {
		t.Fatalf("first sighting: first=%v err=%v", first, err)
	}
	again, err := s.FirstContact(ctx, "t1")
	if err != nil || again {
		t.Fatalf("second sighting: first=%v err=%v", again, err)
	}
}

func TestFirstContactSurvivesAdminWrite(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SetThreadAdmins(ctx, "t1", []string{"u1"})
	if first, _ := s.FirstContact(ctx, "t1"); first {
		t.Fatal("thread already stored via admin write, should not be first contact")
	}
	if ok, _ := s.IsThreadAdmin(ctx, "t1", "u1"); !ok {
		t.Fatal("admin list lost")
	}
}

func TestAuditLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	recs := []domain.AuditRecord{
		{DispatchID: "d1", Kind: "command", SenderID: "u1", ThreadID: "t1", Command: "ping", Outcome: "ok"},
		{DispatchID: "d2", Kind: "denial", SenderID: "u2", ThreadID: "t1", Command: "ban", Outcome: "denied-permission", Detail: "this command requires bot admin"},
	}
	for _, r := range recs {
		if err := s.LogAudit(ctx, r); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	entries, err := s.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].DispatchID != "d1" || entries[1].DispatchID != "d2" {
		t.Fatalf("order = %s, %s; want oldest first", entries[0].DispatchID, entries[1].DispatchID)
	}
	if entries[1].Detail != "this command requires bot admin" {
		t.Fatalf("detail = %q", entries[1].Detail)
	}
}

func TestCounts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SetRole(ctx, "u1", 1)
	s.FirstContact(ctx, "t1")
	s.FirstContact(ctx, "t2")
	s.LogAudit(ctx, domain.AuditRecord{Kind: "command", Outcome: "ok"})

	users, threads, audits, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if users != 1 || threads != 2 || audits != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/2/1", users, threads, audits)
	}
}
