package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	d.Close()

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	if st := d.Stats(); st.Delivered != 5 || st.Dropped != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	d.Close()
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("events after close must be discarded, got %d", got)
	}
}

type gateSink struct {
	release chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &gateSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	if logs.FilterMessage("audit queue full, dropping events").Len() != 1 {
		t.Fatalf("expected one drop warning, got %d", logs.Len())
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// One event parks in the sink, one fills the queue.
	d.Emit(context.Background(), Event{})
	d.Emit(context.Background(), Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{})

	if d.Dropped() == 0 {
		t.Fatal("expected the cancelled emit to count as dropped")
	}
	close(sink.release)
	d.Close()
}

type panicSink struct{ n int }

func (s *panicSink) Emit(context.Context, Event) {
	s.n++
	if s.n == 1 {
		panic("sink exploded")
	}
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, sink)

	d.Emit(context.Background(), Event{EventType: "first"})
	d.Emit(context.Background(), Event{EventType: "second"})
	d.Close()

	st := d.Stats()
	if st.Panicked != 1 || st.Delivered != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if logs.Len() != 1 || logs.All()[0].ContextMap()["event_type"] != "first" {
		t.Fatalf("expected one panic log for the first event, got %v", logs.All())
	}
}

func TestDispatcherConcurrentEmitAndClose(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, NoOpSink{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Emit(context.Background(), Event{EventType: "x"})
			}
		}()
	}
	d.Close()
	wg.Wait()
}

func TestDisabledDispatcherIsNilSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.Stats() != (Stats{}) {
		t.Fatal("nil dispatcher must report zero")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "token_revoked", AccountID: "1234567890", Success: true})
	s.Emit(context.Background(), Event{EventType: "account_locked", Subject: "a@b.com"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != "token_revoked" || ev.AccountID != "1234567890" {
		t.Fatalf("unexpected event %+v", ev)
	}

	NewJSONWriterSink(nil).Emit(context.Background(), ev)
}

func TestZapSinkFlattensEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{
		Timestamp: time.Now(),
		EventType: "login_failure",
		Subject:   "a@b.com",
		Reason:    "invalid_credentials",
		Metadata:  map[string]string{"scope": "login"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("policy failures must not log above info, got %v", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["reason"] != "invalid_credentials" || fields["meta.scope"] != "login" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["account_id"]; ok {
		t.Fatal("empty fields must be omitted")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
