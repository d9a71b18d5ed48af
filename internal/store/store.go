// Package store persists user profiles, thread metadata and the dispatch
// audit log in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"goatbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ProfileStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		role        INTEGER NOT NULL DEFAULT 0,
		banned      INTEGER NOT NULL DEFAULT 0,
		ban_reason  TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS threads (
		id          TEXT PRIMARY KEY,
		admin_ids   TEXT,
		first_seen  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		dispatch_id TEXT,
		kind        TEXT NOT NULL,
		sender_id   TEXT,
		thread_id   TEXT,
		command     TEXT,
		outcome     TEXT NOT NULL,
		details     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_sender ON audit_log(sender_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// GetSenderIdentity returns the stored identity for userID, or the zero-value
// identity (role everyone, not banned) when the user has never been seen.
func (s *SQLiteStore) GetSenderIdentity(ctx context.Context, userID string) (domain.SenderIdentity, error) {
	id := domain.SenderIdentity{ID: userID, Role: domain.RoleEveryone}

	var banned int
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT role, banned, ban_reason FROM users WHERE id = ?`, userID,
	).Scan(&id.Role, &banned, &reason)
	if err == sql.ErrNoRows {
		return id, nil
	}
	if err != nil {
		return id, err
	}
	id.Banned = banned != 0
	id.BanReason = reason.String
	return id, nil
}

func (s *SQLiteStore) SetRole(ctx context.Context, userID string, role int) error {
	if role < domain.RoleEveryone || role > domain.RoleBotAdmin {
		return fmt.Errorf("role %d out of range", role)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, role, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		userID, role, time.Now(),
	)
	return err
}

func (s *SQLiteStore) SetBanned(ctx context.Context, userID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, banned, ban_reason, updated_at) VALUES (?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET banned = 1, ban_reason = excluded.ban_reason, updated_at = excluded.updated_at`,
		userID, reason, time.Now(),
	)
	return err
}

func (s *SQLiteStore) ClearBan(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET banned = 0, ban_reason = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), userID,
	)
	return err
}

func (s *SQLiteStore) IsThreadAdmin(ctx context.Context, threadID, userID string) (bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT admin_ids FROM threads WHERE id = ?`, threadID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !raw.Valid || raw.String == "" {
		return false, nil
	}

	var admins []string
	if err := json.Unmarshal([]byte(raw.String), &admins); err != nil {
		s.logger.Warn("corrupt admin_ids for thread", "thread", threadID, "err", err)
		return false, nil
	}
	for _, id := range admins {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *SQLiteStore) SetThreadAdmins(ctx context.Context, threadID string, adminIDs []string) error {
	raw, err := json.Marshal(adminIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, admin_ids) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET admin_ids = excluded.admin_ids`,
		threadID, string(raw),
	)
	return err
}

// FirstContact inserts the thread if absent and reports whether this call
// created the row.
func (s *SQLiteStore) FirstContact(ctx context.Context, threadID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO threads (id) VALUES (?)`, threadID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) LogAudit(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (dispatch_id, kind, sender_id, thread_id, command, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DispatchID, rec.Kind, rec.SenderID, rec.ThreadID, rec.Command, rec.Outcome, rec.Detail, time.Now(),
	)
	return err
}

// AuditEntry is one row of the audit log as the dashboard renders it.
type AuditEntry struct {
	DispatchID string    `json:"dispatchId,omitempty"`
	Kind       string    `json:"kind"`
	SenderID   string    `json:"senderId,omitempty"`
	ThreadID   string    `json:"threadId,omitempty"`
	Command    string    `json:"command,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RecentAudit returns the newest audit rows, oldest first.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT dispatch_id, kind, sender_id, thread_id, command, outcome, details, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var dispatchID, senderID, threadID, command, detail sql.NullString
		if err := rows.Scan(&dispatchID, &e.Kind, &senderID, &threadID, &command, &e.Outcome, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DispatchID = dispatchID.String
		e.SenderID = senderID.String
		e.ThreadID = threadID.String
		e.Command = command.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Counts returns user, thread and audit row counts for the dashboard.
func (s *SQLiteStore) Counts(ctx context.Context) (users, threads, audits int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&threads); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&audits)
	return
}
