// Package bus provides the fire-and-forget observability sink. Dispatch
// outcomes are published as structured records; subscribers (dashboard,
// log tail) must never be able to block the pipeline.
package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Record is one structured dispatch outcome.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"` // command | passive | denial | poll
	Account   string         `json:"account,omitempty"`
	SenderID  string         `json:"senderId,omitempty"`
	ThreadID  string         `json:"threadId,omitempty"`
	Command   string         `json:"command,omitempty"`
	Outcome   string         `json:"outcome"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Handler is a callback for records.
type Handler func(Record)

// RecordBus is a topic-based publish/subscribe sink with a bounded history
// buffer for the dashboard's recent-activity view.
type RecordBus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	history    []Record
	maxHistory int
	logger     *slog.Logger
}

type namedHandler struct {
	id string
	fn Handler
}

const defaultHistory = 500

func New(logger *slog.Logger) *RecordBus {
	return &RecordBus{
		handlers:   make(map[string][]namedHandler),
		maxHistory: defaultHistory,
		logger:     logger,
	}
}

// On registers a handler for records of the given kind. Use "*" to receive
// everything. Returns the handler ID for Off.
func (b *RecordBus) On(kind string, fn Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := kind + "-" + strconv.Itoa(len(b.handlers[kind]))
	b.handlers[kind] = append(b.handlers[kind], namedHandler{id: id, fn: fn})
	return id
}

// Off removes a handler by its ID.
func (b *RecordBus) Off(kind, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[kind]
	for i, h := range hs {
		if h.id == id {
			b.handlers[kind] = append(hs[:i], hs[i+1:]...)
			return
		}
	}
}

// Publish appends the record to history and invokes matching handlers
// synchronously. A panicking handler is contained and logged.
func (b *RecordBus) Publish(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	b.mu.Lock()
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, rec)
	b.mu.Unlock()

	b.mu.RLock()
	handlers := make([]namedHandler, 0, 4)
	handlers = append(handlers, b.handlers[rec.Kind]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("record handler panic", "kind", rec.Kind, "handler", nh.id, "panic", r)
				}
			}()
			nh.fn(rec)
		}(h)
	}
}

// PublishAsync publishes without blocking the caller.
func (b *RecordBus) PublishAsync(rec Record) {
	go b.Publish(rec)
}

// Recent returns up to n most recent records, newest last.
func (b *RecordBus) Recent(n int) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Record, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// HistoryLen returns the number of buffered records.
func (b *RecordBus) HistoryLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history)
}
