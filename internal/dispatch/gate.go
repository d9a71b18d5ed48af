// Package dispatch turns normalized inbound events into command executions,
// enforcing permission and cooldown policy on the way.
package dispatch

import (
	"context"
	"log/slog"

	"goatbot/internal/domain"
)

// Decision is the permission gate's verdict. A deny is normal control flow:
// it produces a user-visible reply, never an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Gate evaluates a sender against a command's required role. System admins
// come from configuration; thread-admin status comes from the profile store.
type Gate struct {
	adminIDs map[string]bool
	store    domain.ProfileStore
	logger   *slog.Logger
}

func NewGate(adminIDs []string, store domain.ProfileStore, logger *slog.Logger) *Gate {
	set := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		set[id] = true
	}
	return &Gate{adminIDs: set, store: store, logger: logger}
}

// IsBotAdmin reports whether the sender holds bot-admin privileges, either
// from the configured admin list or from a stored role-2 promotion. The
// config list always wins on conflict: a configured admin stays an admin
// whatever the store says.
func (g *Gate) IsBotAdmin(sender domain.SenderIdentity) bool {
	return g.adminIDs[sender.ID] || sender.Role == domain.RoleBotAdmin
}

// Check evaluates the rule table:
//
//	required 0: everyone
//	required 1: thread admin or bot admin
//	required 2: bot admin only
//
// A banned sender is denied for every required role, with the stored reason.
func (g *Gate) Check(ctx context.Context, sender domain.SenderIdentity, threadID string, required int) Decision {
	if sender.Banned {
		reason := sender.BanReason
		if reason == "" {
			reason = "you are banned from using this bot"
		}
		return deny(reason)
	}

	switch required {
	case domain.RoleEveryone:
		return allow()

	case domain.RoleThreadAdmin:
		if g.IsBotAdmin(sender) {
			return allow()
		}
		isAdmin, err := g.store.IsThreadAdmin(ctx, threadID, sender.ID)
		if err != nil {
			// Store trouble must not escalate privileges.
			g.logger.Warn("thread admin lookup failed", "thread", threadID, "sender", sender.ID, "err", err)
			return deny("thread admin status could not be verified")
		}
		if isAdmin {
			return allow()
		}
		return deny("this command requires thread admin")

	case domain.RoleBotAdmin:
		if g.IsBotAdmin(sender) {
			return allow()
		}
		return deny("this command requires bot admin")

	default:
		g.logger.Warn("unknown required role", "role", required)
		return deny("this command is not available")
	}
}
