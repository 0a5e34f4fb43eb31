package sandbox

import (
	"encoding/json"
	"strings"
	"sync"
)

// DefaultOutputLimit caps the plain-text output kept from a child.
const DefaultOutputLimit = 16 << 10

// outputBuffer keeps plain output lines up to a byte budget, plus the most
// recent non-empty line regardless of the budget.
type outputBuffer struct {
	limit     int
	size      int
	lines     []string
	last      string
	truncated bool
}

func (b *outputBuffer) add(line string) {
	if strings.TrimSpace(line) != "" {
		b.last = line
	}
	if b.truncated {
		return
	}
	if b.size+len(line)+1 > b.limit {
		room := b.limit - b.size
		if room > 0 {
			b.lines = append(b.lines, line[:room])
		}
		b.size = b.limit
		b.truncated = true
		return
	}
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
}

func (b *outputBuffer) text() string {
	return strings.Join(b.lines, "\n")
}

// parseOutput returns the child's structured result: the last non-empty
// line decoded as JSON, or the raw captured text when that line is not JSON.
func parseOutput(b *outputBuffer) any {
	if last := strings.TrimSpace(b.last); last != "" {
		var v any
		if err := json.Unmarshal([]byte(last), &v); err == nil {
			return v
		}
	}
	return b.text()
}

// cappedBuffer is an io.Writer that keeps the first limit bytes written.
type cappedBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := c.limit - len(c.buf); room > 0 {
		c.buf = append(c.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}
