package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/mcpexec/internal/security"
)

// DefaultHistorySize is the number of events kept in memory.
const DefaultHistorySize = 1000

// Sink persists events. Write is called under the log's writer lock, in
// sequence order.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Resumer is implemented by sinks that remember the last sequence they
// stored, so a reopened log continues numbering after it.
type Resumer interface {
	MaxSequence(ctx context.Context) (uint64, error)
}

// Config configures a Log.
type Config struct {
	// HistorySize bounds the in-memory history. Defaults to DefaultHistorySize.
	HistorySize int

	// Sinks receive every event after it is numbered.
	Sinks []Sink

	// Redactor, if non-nil, scrubs secrets from payload strings.
	Redactor *security.Redactor

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Log is the append-only audit log. A single writer lock orders appends;
// readers see a consistent prefix.
type Log struct {
	logger   *slog.Logger
	sinks    []Sink
	redactor *security.Redactor
	now      func() time.Time

	mu      sync.RWMutex
	seq     uint64
	history []Event
	next    int
	full    bool
	closed  bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped int64
}

// Dropped returns how many events slow subscribers missed.
func (l *Log) Dropped() int64 {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	return l.dropped
}

// NewLog creates a Log. When a sink implements Resumer the sequence
// continues after the largest value it reports.
func NewLog(ctx context.Context, cfg Config, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := &Log{
		logger:   logger.With("component", "audit"),
		sinks:    cfg.Sinks,
		redactor: cfg.Redactor,
		now:      now,
		history:  make([]Event, size),
		subs:     make(map[int]chan Event),
	}
	for _, s := range cfg.Sinks {
		r, ok := s.(Resumer)
		if !ok {
			continue
		}
		last, err := r.MaxSequence(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: resuming sequence: %w", err)
		}
		l.seq = max(l.seq, last)
	}
	return l, nil
}

// Append numbers e, records it and hands it to every sink and subscriber.
// The event is kept in memory even when a sink fails; sink errors are
// returned joined.
func (l *Log) Append(ctx context.Context, e Event) (Event, error) {
	e.Payload = clonePayload(e.Payload)
	if l.redactor != nil && e.Payload != nil {
		l.redactor.RedactMap(e.Payload)
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Event{}, ErrClosed
	}
	l.seq++
	e.Sequence = l.seq
	e.Timestamp = l.now().UTC()

	l.history[l.next] = e
	l.next = (l.next + 1) % len(l.history)
	if l.next == 0 {
		l.full = true
	}

	var errs []error
	for _, s := range l.sinks {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	// Published under the writer lock so subscribers observe sequence order.
	l.publish(e)
	l.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		l.logger.Error("audit sink write failed", "sequence", e.Sequence, "error", err)
		return e, err
	}
	return e, nil
}

func (l *Log) publish(e Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			l.dropped++
		}
	}
}

// Subscribe returns a channel receiving every event appended after the
// call. Slow subscribers lose events rather than stalling Append. The
// returned func unsubscribes and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			defer l.subMu.Unlock()
			if _, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(ch)
			}
		})
	}
}

// LastSequence returns the sequence of the newest event.
func (l *Log) LastSequence() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Recent returns the events in memory matching f, oldest first.
func (l *Log) Recent(f Filter) []Event {
	l.mu.RLock()
	var ordered []Event
	if l.full {
		ordered = append(ordered, l.history[l.next:]...)
	}
	ordered = append(ordered, l.history[:l.next]...)
	l.mu.RUnlock()

	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// ForExecution returns the in-memory events that reference id.
func (l *Log) ForExecution(id string) []Event {
	return l.Recent(Filter{ExecutionID: id})
}

// Close stops further appends and closes every subscriber channel. Sinks
// are owned by the caller.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.subMu.Lock()
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
	l.subMu.Unlock()
}
