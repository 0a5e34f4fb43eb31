package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/mcpexec/internal/security"
)

func newTestLog(t *testing.T, cfg Config) *Log {
	t.Helper()
	if cfg.Now == nil {
		fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		cfg.Now = func() time.Time { return fixed }
	}
	l, err := NewLog(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewLog() error = %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestLog_AppendAssignsSequence(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{})
	ctx := context.Background()
	first, err := l.Append(ctx, Event{Kind: KindExecution, ExecutionID: "e1"})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := l.Append(ctx, Event{Kind: KindSecurity, Severity: SeverityCritical})

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", first.Sequence, second.Sequence)
	}
	if first.Severity != SeverityInfo {
		t.Errorf("default severity = %q, want info", first.Severity)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if l.LastSequence() != 2 {
		t.Errorf("LastSequence() = %d", l.LastSequence())
	}
	if got := l.ForExecution("e1"); len(got) != 1 || got[0].Sequence != 1 {
		t.Errorf("ForExecution() = %+v", got)
	}
}

func TestLog_RedactsPayloadWithoutMutatingCaller(t *testing.T) {
	t.Parallel()

	r := security.NewRedactor()
	r.AddLiteral("my-secret-key")

	var buf bytes.Buffer
	l := newTestLog(t, Config{Redactor: r, Sinks: []Sink{NewJSONLWriter(&buf)}})

	payload := map[string]any{
		"detail": "calling with my-secret-key",
		"nested": map[string]any{"arg": "value is my-secret-key here"},
	}
	got, err := l.Append(context.Background(), Event{Kind: KindExecution, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "my-secret-key") {
		t.Errorf("secret found in audit output: %s", buf.String())
	}
	if !strings.Contains(buf.String(), security.RedactPlaceholder) {
		t.Errorf("expected placeholder in audit output: %s", buf.String())
	}
	if got.Payload["detail"] == payload["detail"] {
		t.Error("returned payload not redacted")
	}
	if payload["detail"] != "calling with my-secret-key" {
		t.Error("caller payload was mutated")
	}
}

func TestLog_HistoryIsBounded(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{HistorySize: 3})
	for range 5 {
		_, _ = l.Append(context.Background(), Event{Kind: KindExecution})
	}
	got := l.Recent(Filter{})
	if len(got) != 3 {
		t.Fatalf("Recent() = %d events, want 3", len(got))
	}
	for i, want := range []uint64{3, 4, 5} {
		if got[i].Sequence != want {
			t.Errorf("got[%d].Sequence = %d, want %d", i, got[i].Sequence, want)
		}
	}
	if tail := l.Recent(Filter{Limit: 1}); len(tail) != 1 || tail[0].Sequence != 5 {
		t.Errorf("Recent(limit 1) = %+v", tail)
	}
}

func TestLog_Filter(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{})
	ctx := context.Background()
	_, _ = l.Append(ctx, Event{Kind: KindExecution, ExecutionID: "a"})
	_, _ = l.Append(ctx, Event{Kind: KindSecurity, ExecutionID: "a"})
	_, _ = l.Append(ctx, Event{Kind: KindExecution, ExecutionID: "b"})

	tests := []struct {
		name   string
		filter Filter
		want   []uint64
	}{
		{"all", Filter{}, []uint64{1, 2, 3}},
		{"kind", Filter{Kind: KindExecution}, []uint64{1, 3}},
		{"execution", Filter{ExecutionID: "a"}, []uint64{1, 2}},
		{"after", Filter{AfterSequence: 2}, []uint64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := l.Recent(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("Recent() = %d events, want %d", len(got), len(tt.want))
			}
			for i, seq := range tt.want {
				if got[i].Sequence != seq {
					t.Errorf("got[%d] = %d, want %d", i, got[i].Sequence, seq)
				}
			}
		})
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("disk full") }

func TestLog_SinkErrorStillRecords(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{Sinks: []Sink{failingSink{}}})
	e, err := l.Append(context.Background(), Event{Kind: KindError})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Append() error = %v", err)
	}
	if e.Sequence != 1 || len(l.Recent(Filter{})) != 1 {
		t.Error("event not kept in memory")
	}
}

type fixedResumer struct{ last uint64 }

func (fixedResumer) Write(context.Context, Event) error            { return nil }
func (r fixedResumer) MaxSequence(context.Context) (uint64, error) { return r.last, nil }

func TestLog_ResumesSequence(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{Sinks: []Sink{fixedResumer{last: 41}, fixedResumer{last: 7}}})
	e, _ := l.Append(context.Background(), Event{Kind: KindExecution})
	if e.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", e.Sequence)
	}
}

func TestLog_ConcurrentAppendsAreTotallyOrdered(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := newTestLog(t, Config{Sinks: []Sink{NewJSONLWriter(&buf)}})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Append(context.Background(), Event{Kind: KindExecution})
		}()
	}
	wg.Wait()

	events, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 50 {
		t.Fatalf("got %d lines, want 50", len(events))
	}
	for i, e := range events {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("line %d has sequence %d", i, e.Sequence)
		}
	}
}

func TestLog_Subscribe(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{})
	ch, unsubscribe := l.Subscribe(4)
	_, _ = l.Append(context.Background(), Event{Kind: KindAnomaly})

	select {
	case e := <-ch:
		if e.Kind != KindAnomaly || e.Sequence != 1 {
			t.Errorf("received %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
}

func TestLog_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, Config{})
	_, unsubscribe := l.Subscribe(1)
	defer unsubscribe()
	for range 5 {
		_, _ = l.Append(context.Background(), Event{Kind: KindExecution})
	}
	if l.Dropped() != 4 {
		t.Errorf("Dropped() = %d, want 4", l.Dropped())
	}
}

func TestLog_Close(t *testing.T) {
	t.Parallel()

	l, err := NewLog(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ch, unsubscribe := l.Subscribe(1)
	l.Close()
	if _, ok := <-ch; ok {
		t.Error("subscriber channel open after Close")
	}
	unsubscribe()
	if _, err := l.Append(context.Background(), Event{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() after Close error = %v", err)
	}
}
