package domain

import "context"

// Role tiers gating command execution.
const (
	RoleEveryone    = 0
	RoleThreadAdmin = 1
	RoleBotAdmin    = 2
)

// SenderIdentity is the permission store's view of a sender, derived per
// dispatch and never cached beyond it.
type SenderIdentity struct {
	ID        string
	Role      int
	Banned    bool
	BanReason string
}

// AuditRecord is one structured dispatch outcome written to the audit log
// and the observability sink.
type AuditRecord struct {
	DispatchID string
	Kind       string // command | passive | denial
	SenderID   string
	ThreadID   string
	Command    string
	Outcome    string // ok | error | denied-permission | denied-cooldown | banned
	Detail     string
}

// ProfileStore is the persistence capability for user and thread profiles.
type ProfileStore interface {
	GetSenderIdentity(ctx context.Context, userID string) (SenderIdentity, error)
	SetRole(ctx context.Context, userID string, role int) error
	SetBanned(ctx context.Context, userID, reason string) error
	ClearBan(ctx context.Context, userID string) error

	// IsThreadAdmin reports whether userID has elevated status in the thread.
	IsThreadAdmin(ctx context.Context, threadID, userID string) (bool, error)
	SetThreadAdmins(ctx context.Context, threadID string, adminIDs []string) error

	// FirstContact records the thread on first sight and reports whether
	// this call was the first sighting.
	FirstContact(ctx context.Context, threadID string) (bool, error)

	LogAudit(ctx context.Context, rec AuditRecord) error
}
