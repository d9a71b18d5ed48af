package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"goatbot/internal/bus"
	"goatbot/internal/command"
	"goatbot/internal/domain"
	"goatbot/internal/metrics"
)

// greeting is sent once per thread, the first time the bot sees it.
const greeting = "Hey! I'm a bot. Send %shelp to see what I can do."

// Executor runs the serial dispatch pipeline for one account:
// resolve, gate, cooldown, execute, report. One event at a time.
// The registry, gate, store, and sink may be shared across accounts;
// the cooldown tracker must not be, or one account's windows would
// throttle senders on every other account.
type Executor struct {
	account         string
	prefix          string
	defaultCooldown int
	registry        *command.Registry
	gate            *Gate
	cooldowns       *CooldownTracker
	store           domain.ProfileStore
	transport       domain.Transport
	sink            *bus.RecordBus
	logger          *slog.Logger
}

type Options struct {
	Account string
	Prefix  string

	// DefaultCooldownSeconds applies to commands that declare no cooldown
	// of their own.
	DefaultCooldownSeconds int

	Registry  *command.Registry
	Gate      *Gate
	Cooldowns *CooldownTracker
	Store     domain.ProfileStore
	Transport domain.Transport
	Sink      *bus.RecordBus
	Logger    *slog.Logger
}

func NewExecutor(opts Options) *Executor {
	return &Executor{
		account:         opts.Account,
		prefix:          opts.Prefix,
		defaultCooldown: opts.DefaultCooldownSeconds,
		registry:        opts.Registry,
		gate:            opts.Gate,
		cooldowns:       opts.Cooldowns,
		store:           opts.Store,
		transport:       opts.Transport,
		sink:            opts.Sink,
		logger:          opts.Logger,
	}
}

// Dispatch processes one normalized event to completion. It never returns an
// error: every failure mode inside the pipeline is contained and reported.
func (e *Executor) Dispatch(ctx context.Context, ev *domain.InboundEvent) {
	e.runPassive(ctx, ev)

	if ev.Kind != domain.EventText {
		return
	}
	body := strings.TrimSpace(ev.Body)
	if !strings.HasPrefix(body, e.prefix) {
		return
	}
	name, args := parseCommandLine(body, e.prefix)
	if name == "" {
		return
	}

	desc := e.registry.Resolve(name)
	if desc == nil {
		// Unknown commands are dropped without a reply so the bot stays
		// quiet in threads where the prefix collides with normal chat.
		e.logger.Debug("unknown command", "account", e.account, "name", name, "sender", ev.SenderID)
		return
	}

	metrics.DispatchTotal.Inc()
	dispatchID := uuid.NewString()
	responder := e.responderFor(ev)

	sender, err := e.store.GetSenderIdentity(ctx, ev.SenderID)
	if err != nil {
		e.logger.Error("sender lookup failed", "account", e.account, "sender", ev.SenderID, "err", err)
		e.report(ctx, domain.AuditRecord{
			DispatchID: dispatchID, Kind: "command", SenderID: ev.SenderID,
			ThreadID: ev.ThreadID, Command: desc.Name, Outcome: "error",
			Detail: "identity lookup failed",
		})
		return
	}

	if d := e.gate.Check(ctx, sender, ev.ThreadID, desc.RequiredRole); !d.Allowed {
		metrics.PermissionDenied.Inc()
		outcome := "denied-permission"
		if sender.Banned {
			outcome = "banned"
		}
		e.replyBestEffort(ctx, responder, d.Reason)
		e.report(ctx, domain.AuditRecord{
			DispatchID: dispatchID, Kind: "denial", SenderID: ev.SenderID,
			ThreadID: ev.ThreadID, Command: desc.Name, Outcome: outcome, Detail: d.Reason,
		})
		return
	}

	if !e.gate.IsBotAdmin(sender) {
		cooldown := desc.CooldownSeconds
		if cooldown == 0 {
			cooldown = e.defaultCooldown
		}
		if ok, remaining := e.cooldowns.TryConsume(sender.ID, desc.Name, cooldown); !ok {
			metrics.CooldownDenied.Inc()
			msg := "slow down, try again in " + formatSeconds(remaining)
			e.replyBestEffort(ctx, responder, msg)
			e.report(ctx, domain.AuditRecord{
				DispatchID: dispatchID, Kind: "denial", SenderID: ev.SenderID,
				ThreadID: ev.ThreadID, Command: desc.Name, Outcome: "denied-cooldown",
				Detail: formatSeconds(remaining),
			})
			return
		}
	}

	inv := &domain.Invocation{
		Event:     ev,
		Args:      args,
		Prefix:    e.prefix,
		Sender:    sender,
		Respond:   responder,
		Transport: e.transport,
	}

	if err := responder.Typing(ctx, true); err != nil {
		e.logger.Debug("typing indicator failed", "thread", ev.ThreadID, "err", err)
	}

	start := time.Now()
	err = e.runHandler(ctx, desc, inv)
	elapsed := time.Since(start)

	if err != nil {
		metrics.DispatchErrors.Inc()
		e.logger.Error("command failed", "account", e.account, "command", desc.Name,
			"sender", ev.SenderID, "elapsed", elapsed, "err", err)
		e.replyBestEffort(ctx, responder, "something went wrong running that command")
		e.report(ctx, domain.AuditRecord{
			DispatchID: dispatchID, Kind: "command", SenderID: ev.SenderID,
			ThreadID: ev.ThreadID, Command: desc.Name, Outcome: "error", Detail: err.Error(),
		})
		return
	}

	e.logger.Info("command ok", "account", e.account, "command", desc.Name,
		"sender", ev.SenderID, "elapsed", elapsed)
	if err := e.transport.MarkRead(ctx, ev.ThreadID, itemIDOf(ev)); err != nil {
		e.logger.Debug("mark read failed", "thread", ev.ThreadID, "err", err)
	}
	e.report(ctx, domain.AuditRecord{
		DispatchID: dispatchID, Kind: "command", SenderID: ev.SenderID,
		ThreadID: ev.ThreadID, Command: desc.Name, Outcome: "ok",
	})
}

// runHandler contains panics from command handlers; a panicking command must
// not take down the account's poll loop.
func (e *Executor) runHandler(ctx context.Context, desc *domain.CommandDescriptor, inv *domain.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{command: desc.Name, value: r}
		}
	}()
	return desc.Handler(ctx, inv)
}

// runPassive fires hooks that do not require a command prefix. Currently:
// a one-time greeting the first time a thread is seen.
func (e *Executor) runPassive(ctx context.Context, ev *domain.InboundEvent) {
	if ev.Kind != domain.EventText && ev.Kind != domain.EventMedia {
		return
	}
	first, err := e.store.FirstContact(ctx, ev.ThreadID)
	if err != nil {
		e.logger.Warn("first contact check failed", "thread", ev.ThreadID, "err", err)
		return
	}
	if !first {
		return
	}
	msg := fmt.Sprintf(greeting, e.prefix)
	if _, err := e.transport.SendMessage(ctx, ev.ThreadID, msg); err != nil {
		e.logger.Warn("greeting failed", "thread", ev.ThreadID, "err", err)
		return
	}
	e.sink.Publish(bus.Record{
		Timestamp: time.Now(), Kind: "passive", Account: e.account,
		ThreadID: ev.ThreadID, Outcome: "greeted",
	})
}

func (e *Executor) report(ctx context.Context, rec domain.AuditRecord) {
	if err := e.store.LogAudit(ctx, rec); err != nil {
		e.logger.Warn("audit write failed", "dispatch", rec.DispatchID, "err", err)
	}
	e.sink.Publish(bus.Record{
		Timestamp: time.Now(),
		Kind:      rec.Kind,
		Account:   e.account,
		SenderID:  rec.SenderID,
		ThreadID:  rec.ThreadID,
		Command:   rec.Command,
		Outcome:   rec.Outcome,
	})
}

func (e *Executor) replyBestEffort(ctx context.Context, r domain.Responder, text string) {
	if err := r.Reply(ctx, text); err != nil {
		e.logger.Debug("reply failed", "err", err)
	}
}

func (e *Executor) responderFor(ev *domain.InboundEvent) domain.Responder {
	return &threadResponder{
		transport: e.transport,
		threadID:  ev.ThreadID,
		itemID:    itemIDOf(ev),
	}
}

// itemIDOf recovers the raw item ID from the composite event ID.
func itemIDOf(ev *domain.InboundEvent) string {
	return strings.TrimPrefix(ev.ID, ev.ThreadID+":")
}

// parseCommandLine splits a prefixed message into a lowercase command name
// and whitespace-separated arguments. A bare prefix yields an empty name.
func parseCommandLine(body, prefix string) (name string, args []string) {
	rest := strings.TrimPrefix(body, prefix)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func formatSeconds(n int) string {
	if n == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", n)
}

type panicError struct {
	command string
	value   any
}

func (p *panicError) Error() string {
	return "panic in command " + p.command
}

// threadResponder binds outbound sends to the triggering event's thread.
type threadResponder struct {
	transport domain.Transport
	threadID  string
	itemID    string
}

func (r *threadResponder) Reply(ctx context.Context, text string) error {
	_, err := r.transport.SendMessage(ctx, r.threadID, text)
	return err
}

func (r *threadResponder) React(ctx context.Context, emoji string) error {
	return r.transport.React(ctx, r.threadID, r.itemID, emoji)
}

func (r *threadResponder) Typing(ctx context.Context, active bool) error {
	return r.transport.SetTyping(ctx, r.threadID, active)
}
