package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"goatbot/internal/domain"
	"goatbot/internal/metrics"
)

// State of the polling loop, exposed for the status dashboard.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDelivering
	StateBackingOff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateDelivering:
		return "delivering"
	case StateBackingOff:
		return "backing-off"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// InboxSource is the slice of the transport the poller consumes.
type InboxSource interface {
	SelfID() string
	FetchInbox(ctx context.Context) (*domain.Inbox, error)
}

// Normalizer converts one raw inbox item into a canonical event, or nil to
// drop it.
type Normalizer interface {
	Normalize(item domain.RawItem, thread domain.InboxThread) *domain.InboundEvent
}

// Handler receives normalized events in transport order. The poller awaits
// each call before evaluating the next item.
type Handler func(ctx context.Context, ev *domain.InboundEvent)

// Options tunes one account's polling loop.
type Options struct {
	Floor    time.Duration
	Ceiling  time.Duration
	Jitter   time.Duration
	DedupCap int
}

// Poller owns the repeat-fetch loop for one account. It feeds the dedup
// cache and backoff controller and hands normalized events to the handler.
// All mutable state is owned by the single Run goroutine.
type Poller struct {
	account    string
	source     InboxSource
	normalizer Normalizer
	handler    Handler
	dedup      *DedupCache
	backoff    *Backoff
	logger     *slog.Logger

	firstPoll bool
	// dedupReported is this poller's last contribution to the shared dedup
	// gauge; publishing deltas keeps the gauge a sum over all accounts.
	dedupReported int
	stopped       atomic.Bool
	state         atomic.Int32
}

func New(account string, source InboxSource, normalizer Normalizer, handler Handler, opts Options, logger *slog.Logger) *Poller {
	return &Poller{
		account:    account,
		source:     source,
		normalizer: normalizer,
		handler:    handler,
		dedup:      NewDedupCache(opts.DedupCap),
		backoff:    NewBackoff(opts.Floor, opts.Ceiling, opts.Jitter),
		logger:     logger.With("account", account),
		firstPoll:  true,
	}
}

// State returns the loop's current state.
func (p *Poller) State() State { return State(p.state.Load()) }

// DedupLen returns the current dedup cache size.
func (p *Poller) DedupLen() int { return p.dedup.Len() }

// Stop requests cooperative shutdown. The flag is checked at the top of
// each iteration; an in-flight fetch or handler invocation completes first.
func (p *Poller) Stop() { p.stopped.Store(true) }

// Run drives the polling loop until Stop is called or the context is
// cancelled. The only error it returns is the terminal auth-invalid
// condition; every other failure is recovered locally with backoff.
func (p *Poller) Run(ctx context.Context) error {
	// The floor wait applies even before the first fetch so a fleet of
	// restarting accounts does not stampede the platform.
	delay := p.backoff.Floor()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	p.logger.Info("poller started", "floor", p.backoff.Floor())

	for {
		if p.stopped.Load() {
			p.state.Store(int32(StateStopped))
			p.logger.Info("poller stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			p.state.Store(int32(StateStopped))
			p.logger.Info("poller context cancelled")
			return nil
		case <-timer.C:
		}

		if p.stopped.Load() {
			p.state.Store(int32(StateStopped))
			p.logger.Info("poller stopped")
			return nil
		}

		p.state.Store(int32(StatePolling))
		start := time.Now()
		inbox, err := p.source.FetchInbox(ctx)
		metrics.PollLatency.Observe(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				p.state.Store(int32(StateStopped))
				return nil
			}
			metrics.PollErrors.Inc()
			p.state.Store(int32(StateBackingOff))

			switch domain.ClassifyError(err) {
			case domain.ErrKindAuthInvalid:
				p.state.Store(int32(StateStopped))
				p.logger.Error("session invalid, poller halted", "err", err)
				return fmt.Errorf("account %s: %w", p.account, err)
			case domain.ErrKindRateLimited:
				delay = p.backoff.Saturate()
				p.logger.Warn("rate limited, saturating backoff", "delay", delay)
			default:
				delay = p.backoff.NextDelay(false)
				p.logger.Warn("inbox fetch failed", "err", err,
					"consecutive_errors", p.backoff.Errors(), "delay", delay)
			}
			timer.Reset(delay)
			continue
		}

		delay = p.backoff.NextDelay(true)
		p.state.Store(int32(StateDelivering))
		p.deliver(ctx, inbox)
		cur := p.dedup.Len()
		metrics.DedupSize.Add(int64(cur - p.dedupReported))
		p.dedupReported = cur
		timer.Reset(delay)
	}
}

// deliver walks the inbox snapshot in transport order. The very first cycle
// only seeds the dedup cache: pre-existing history must not replay as new
// events.
func (p *Poller) deliver(ctx context.Context, inbox *domain.Inbox) {
	self := p.source.SelfID()
	delivered := 0
	seeded := 0

	for _, thread := range inbox.Threads {
		for _, item := range thread.Items {
			id := domain.EventID(thread.ID, item.ID)

			if p.firstPoll {
				p.dedup.Remember(id)
				seeded++
				continue
			}
			if p.dedup.Seen(id) {
				continue
			}
			p.dedup.Remember(id)

			if item.AuthorID == self {
				continue
			}

			ev := p.normalizer.Normalize(item, thread)
			if ev == nil {
				continue
			}
			metrics.EventsTotal.Inc()
			p.handler(ctx, ev)
			delivered++
		}
	}

	if p.firstPoll {
		p.firstPoll = false
		p.logger.Info("first poll cycle, history suppressed", "cached", seeded)
		return
	}
	if delivered > 0 {
		p.logger.Debug("events delivered", "count", delivered)
	}
}
