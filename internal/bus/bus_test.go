package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecordBus_PublishAndReceive(t *testing.T) {
	b := New(testLogger())

	var got atomic.Int32
	b.On("command", func(r Record) {
		if r.Outcome != "ok" {
			t.Errorf("outcome = %q", r.Outcome)
		}
		got.Add(1)
	})

	b.Publish(Record{Kind: "command", Outcome: "ok"})
	if got.Load() != 1 {
		t.Errorf("received %d records, want 1", got.Load())
	}
}

func TestRecordBus_Wildcard(t *testing.T) {
	b := New(testLogger())

	var count atomic.Int32
	b.On("*", func(r Record) { count.Add(1) })

	b.Publish(Record{Kind: "command", Outcome: "ok"})
	b.Publish(Record{Kind: "denial", Outcome: "denied-cooldown"})

	if count.Load() != 2 {
		t.Errorf("wildcard received %d, want 2", count.Load())
	}
}

func TestRecordBus_Off(t *testing.T) {
	b := New(testLogger())

	var count atomic.Int32
	id := b.On("command", func(r Record) { count.Add(1) })

	b.Publish(Record{Kind: "command"})
	b.Off("command", id)
	b.Publish(Record{Kind: "command"})

	if count.Load() != 1 {
		t.Errorf("received %d after Off, want 1", count.Load())
	}
}

func TestRecordBus_PanickingHandlerContained(t *testing.T) {
	b := New(testLogger())

	b.On("command", func(r Record) { panic("boom") })
	var after atomic.Int32
	b.On("command", func(r Record) { after.Add(1) })

	b.Publish(Record{Kind: "command"})
	if after.Load() != 1 {
		t.Error("handler after panicking one was not invoked")
	}
}

func TestRecordBus_HistoryBounded(t *testing.T) {
	b := New(testLogger())
	b.maxHistory = 10

	for i := 0; i < 25; i++ {
		b.Publish(Record{Kind: "command"})
	}
	if b.HistoryLen() != 10 {
		t.Errorf("history len = %d, want 10", b.HistoryLen())
	}
}

func TestRecordBus_Recent(t *testing.T) {
	b := New(testLogger())

	b.Publish(Record{Kind: "command", Command: "first"})
	b.Publish(Record{Kind: "command", Command: "second"})
	b.Publish(Record{Kind: "command", Command: "third"})

	recent := b.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d", len(recent))
	}
	if recent[0].Command != "second" || recent[1].Command != "third" {
		t.Errorf("recent order wrong: %v %v", recent[0].Command, recent[1].Command)
	}

	if got := b.Recent(0); len(got) != 3 {
		t.Errorf("Recent(0) should return all, got %d", len(got))
	}
}
