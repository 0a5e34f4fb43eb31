// Package bridge defines the line protocol a sandboxed artifact uses to call
// tools through its host. The child writes a marker-prefixed JSON request on
// stdout; the host answers with one JSON line on the child's stdin.
package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Marker prefixes every tool-call line written by the child.
const Marker = "@@mcpexec:call@@ "

// MaxLineBytes bounds a single protocol line.
const MaxLineBytes = 1 << 20

// Request is a tool call issued by the child.
type Request struct {
	ID   int64           `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Response answers one Request.
type Response struct {
	ID     int64  `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ParseRequest decodes a stdout line. ok is false when the line is not a
// tool call.
func ParseRequest(line string) (req Request, ok bool, err error) {
	payload, found := strings.CutPrefix(line, Marker)
	if !found {
		return Request{}, false, nil
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return Request{}, true, fmt.Errorf("decoding tool call: %w", err)
	}
	if req.Tool == "" {
		return req, true, errors.New("tool call without a tool name")
	}
	return req, true, nil
}

// Client issues tool calls from inside the child process.
type Client struct {
	mu  sync.Mutex
	out io.Writer
	in  *bufio.Reader
	seq int64
}

// NewClient creates a client writing requests to out and reading responses
// from in.
func NewClient(out io.Writer, in io.Reader) *Client {
	return &Client{out: out, in: bufio.NewReaderSize(in, 64<<10)}
}

// Call sends one request and returns the JSON encoding of the result.
func (c *Client) Call(tool, argsJSON string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}
	c.seq++
	req, err := json.Marshal(Request{ID: c.seq, Tool: tool, Args: json.RawMessage(argsJSON)})
	if err != nil {
		return "", fmt.Errorf("encoding tool call: %w", err)
	}
	if _, err := io.WriteString(c.out, Marker+string(req)+"\n"); err != nil {
		return "", fmt.Errorf("writing tool call: %w", err)
	}

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return "", errors.New("tool bridge closed")
		}
		return "", fmt.Errorf("reading tool result: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return "", fmt.Errorf("decoding tool result: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "tool call failed"
		}
		return "", errors.New(resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(raw), nil
}

// WriteResponse encodes resp as one line on w.
func WriteResponse(w io.Writer, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
