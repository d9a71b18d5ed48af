package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"goatbot/internal/domain"
)

// BuiltinDeps carries the collaborators the built-in commands close over.
type BuiltinDeps struct {
	StartTime time.Time
	Version   string
	Store     domain.ProfileStore
}

// RegisterBuiltins loads the built-in command set.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	builtins := []*domain.CommandDescriptor{
		{
			Name:            "ping",
			Aliases:         []string{"latency"},
			Description:     "Check bot response time",
			CooldownSeconds: 3,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				start := time.Now()
				if err := inv.Respond.Reply(ctx, "Pong!"); err != nil {
					return err
				}
				return inv.Respond.Reply(ctx, fmt.Sprintf("Response time: %dms", time.Since(start).Milliseconds()))
			},
		},
		{
			Name:            "help",
			Aliases:         []string{"commands"},
			Description:     "List available commands",
			CooldownSeconds: 5,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				var sb strings.Builder
				sb.WriteString("Available commands:\n")
				for _, d := range r.List() {
					sb.WriteString(inv.Prefix)
					sb.WriteString(d.Name)
					if d.Description != "" {
						sb.WriteString(" - ")
						sb.WriteString(d.Description)
					}
					switch d.RequiredRole {
					case domain.RoleThreadAdmin:
						sb.WriteString(" (thread admin)")
					case domain.RoleBotAdmin:
						sb.WriteString(" (bot admin)")
					}
					sb.WriteString("\n")
				}
				return inv.Respond.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
			},
		},
		{
			Name:            "uptime",
			Aliases:         []string{"runtime"},
			Description:     "Show bot uptime",
			CooldownSeconds: 5,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				return inv.Respond.Reply(ctx, "Uptime: "+formatDuration(time.Since(deps.StartTime)))
			},
		},
		{
			Name:            "info",
			Description:     "Show bot info",
			CooldownSeconds: 5,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				return inv.Respond.Reply(ctx, fmt.Sprintf(
					"goatbot %s\nCommands: %d\nUptime: %s\nPrefix: %s",
					deps.Version, r.Len(), formatDuration(time.Since(deps.StartTime)), inv.Prefix))
			},
		},
		{
			Name:            "say",
			Description:     "Repeat a message",
			Usage:           "say <text>",
			CooldownSeconds: 5,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				if len(inv.Args) == 0 {
					return inv.Respond.Reply(ctx, "Usage: "+inv.Prefix+"say <text>")
				}
				return inv.Respond.Reply(ctx, strings.Join(inv.Args, " "))
			},
		},
		{
			Name:            "userinfo",
			Aliases:         []string{"whois"},
			Description:     "Look up a user profile",
			Usage:           "userinfo [userID]",
			CooldownSeconds: 5,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				target := inv.Event.SenderID
				if len(inv.Args) > 0 {
					target = inv.Args[0]
				}
				profile, err := inv.Transport.GetUserInfo(ctx, target)
				if err != nil {
					return fmt.Errorf("user lookup: %w", err)
				}
				return inv.Respond.Reply(ctx, fmt.Sprintf(
					"User: @%s\nName: %s\nID: %s", profile.Username, profile.FullName, profile.ID))
			},
		},
		{
			Name:            "admin",
			Aliases:         []string{"botadmin"},
			Description:     "Verify bot-admin access",
			RequiredRole:    domain.RoleBotAdmin,
			CooldownSeconds: 3,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				return inv.Respond.Reply(ctx, "Admin verified: "+inv.Sender.ID)
			},
		},
		{
			Name:            "role",
			Aliases:         []string{"setrole"},
			Description:     "View or set a user's role",
			Usage:           "role <userID> [0|1|2]",
			RequiredRole:    domain.RoleBotAdmin,
			CooldownSeconds: 3,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				if len(inv.Args) == 0 {
					return inv.Respond.Reply(ctx, "Usage: "+inv.Prefix+"role <userID> [0|1|2]")
				}
				target := inv.Args[0]
				if len(inv.Args) == 1 {
					id, err := deps.Store.GetSenderIdentity(ctx, target)
					if err != nil {
						return fmt.Errorf("get role: %w", err)
					}
					return inv.Respond.Reply(ctx, fmt.Sprintf("Role for %s: %s", target, roleName(id.Role)))
				}
				role, err := strconv.Atoi(inv.Args[1])
				if err != nil || role < domain.RoleEveryone || role > domain.RoleBotAdmin {
					return inv.Respond.Reply(ctx, "Role must be 0 (everyone), 1 (thread admin), or 2 (bot admin)")
				}
				if err := deps.Store.SetRole(ctx, target, role); err != nil {
					return fmt.Errorf("set role: %w", err)
				}
				return inv.Respond.Reply(ctx, fmt.Sprintf("Set %s to %s", target, roleName(role)))
			},
		},
		{
			Name:            "ban",
			Description:     "Ban a user from the bot",
			Usage:           "ban <userID> [reason]",
			RequiredRole:    domain.RoleBotAdmin,
			CooldownSeconds: 3,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				if len(inv.Args) == 0 {
					return inv.Respond.Reply(ctx, "Usage: "+inv.Prefix+"ban <userID> [reason]")
				}
				reason := "banned by admin"
				if len(inv.Args) > 1 {
					reason = strings.Join(inv.Args[1:], " ")
				}
				if err := deps.Store.SetBanned(ctx, inv.Args[0], reason); err != nil {
					return fmt.Errorf("set ban: %w", err)
				}
				return inv.Respond.Reply(ctx, "Banned "+inv.Args[0])
			},
		},
		{
			Name:            "unban",
			Description:     "Lift a user's ban",
			Usage:           "unban <userID>",
			RequiredRole:    domain.RoleBotAdmin,
			CooldownSeconds: 3,
			Handler: func(ctx context.Context, inv *domain.Invocation) error {
				if len(inv.Args) == 0 {
					return inv.Respond.Reply(ctx, "Usage: "+inv.Prefix+"unban <userID>")
				}
				if err := deps.Store.ClearBan(ctx, inv.Args[0]); err != nil {
					return fmt.Errorf("clear ban: %w", err)
				}
				return inv.Respond.Reply(ctx, "Unbanned "+inv.Args[0])
			},
		},
	}

	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func roleName(role int) string {
	switch role {
	case domain.RoleBotAdmin:
		return "bot admin"
	case domain.RoleThreadAdmin:
		return "thread admin"
	default:
		return "everyone"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))
	return strings.Join(parts, " ")
}
