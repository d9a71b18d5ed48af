package domain

import "context"

// Responder is the thread-bound outbound capability handed to handlers.
// Reply and React are scoped to the event that triggered the dispatch.
type Responder interface {
	Reply(ctx context.Context, text string) error
	React(ctx context.Context, emoji string) error
	Typing(ctx context.Context, active bool) error
}

// Invocation carries everything a command handler may touch.
type Invocation struct {
	Event   *InboundEvent
	Args    []string
	Prefix  string
	Sender  SenderIdentity
	Respond Responder

	// Transport gives handlers read access to platform lookups
	// (user info). Outbound sends go through Respond.
	Transport Transport
}

// CommandHandler runs a resolved command. Returned errors are caught at the
// executor boundary and reported as a generic failure reply.
type CommandHandler func(ctx context.Context, inv *Invocation) error

// CommandDescriptor describes one registered command. Owned by the registry;
// the dispatcher holds read-only references.
type CommandDescriptor struct {
	Name            string
	Aliases         []string
	Description     string
	Usage           string
	RequiredRole    int
	CooldownSeconds int
	Handler         CommandHandler
}
