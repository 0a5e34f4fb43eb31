package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter writes one JSON object per event to an io.Writer.
type JSONLWriter struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	lastSeq uint64
}

var (
	_ Sink    = (*JSONLWriter)(nil)
	_ Resumer = (*JSONLWriter)(nil)
)

// NewJSONLWriter wraps w. The caller keeps ownership of w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

// OpenJSONLFile opens path for appending, creating it if needed, and
// remembers the last sequence already in the file.
func OpenJSONLFile(path string) (*JSONLWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	var last uint64
	if f, err := os.Open(path); err == nil {
		events, rerr := ReadJSONL(f)
		_ = f.Close()
		if rerr != nil {
			return nil, fmt.Errorf("audit: reading %s: %w", path, rerr)
		}
		if n := len(events); n > 0 {
			last = events[n-1].Sequence
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &JSONLWriter{w: f, closer: f, lastSeq: last}, nil
}

// Write encodes e as a single line.
func (j *JSONLWriter) Write(_ context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := json.NewEncoder(j.w).Encode(e); err != nil {
		return fmt.Errorf("audit: jsonl write: %w", err)
	}
	j.lastSeq = max(j.lastSeq, e.Sequence)
	return nil
}

// MaxSequence returns the largest sequence written or found on open.
func (j *JSONLWriter) MaxSequence(context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq, nil
}

// Close closes the file opened by OpenJSONLFile. It is a no-op for writers
// created with NewJSONLWriter.
func (j *JSONLWriter) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// ReadJSONL decodes every event in r. Blank lines are skipped; a torn
// final line, as left by a crash mid-write, is ignored.
func ReadJSONL(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		events  []Event
		pending error
	)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if pending != nil {
			return nil, pending
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			pending = fmt.Errorf("audit: decoding line %d: %w", len(events)+1, err)
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
