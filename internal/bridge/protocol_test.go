package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantErr bool
		want    Request
	}{
		{name: "plain output", line: `{"result": 1}`, wantOK: false},
		{name: "valid call", line: Marker + `{"id":3,"tool":"echo","args":{"input":"hi"}}`, wantOK: true,
			want: Request{ID: 3, Tool: "echo", Args: json.RawMessage(`{"input":"hi"}`)}},
		{name: "bad json", line: Marker + `{"id":`, wantOK: true, wantErr: true},
		{name: "missing tool", line: Marker + `{"id":1,"args":{}}`, wantOK: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := ParseRequest(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr || !tt.wantOK {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// fakeHost answers every request read from r with respond.
func fakeHost(t *testing.T, r io.Reader, w io.Writer, respond func(Request) Response) {
	t.Helper()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		req, ok, err := ParseRequest(sc.Text())
		if !ok || err != nil {
			continue
		}
		resp := respond(req)
		resp.ID = req.ID
		if err := WriteResponse(w, resp); err != nil {
			return
		}
	}
}

func TestClientCall_RoundTrip(t *testing.T) {
	t.Parallel()

	childOut, hostIn := io.Pipe()
	hostOut, childIn := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeHost(t, childOut, childIn, func(req Request) Response {
			if req.Tool == "fail" {
				return Response{OK: false, Error: "boom"}
			}
			var args map[string]any
			_ = json.Unmarshal(req.Args, &args)
			return Response{OK: true, Result: map[string]any{"tool": req.Tool, "args": args}}
		})
	}()

	c := NewClient(hostIn, hostOut)
	got, err := c.Call("echo", `{"input":"hello"}`)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != `{"args":{"input":"hello"},"tool":"echo"}` {
		t.Errorf("Call() = %s", got)
	}

	if _, err := c.Call("fail", ""); err == nil || err.Error() != "boom" {
		t.Errorf("Call(fail) error = %v, want boom", err)
	}

	hostIn.Close()
	childIn.Close()
	<-done
}

func TestClientCall_BridgeClosed(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewClient(&out, strings.NewReader(""))
	_, err := c.Call("echo", "{}")
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("error = %v, want bridge closed", err)
	}
	if !strings.HasPrefix(out.String(), Marker) {
		t.Errorf("request not written with marker: %q", out.String())
	}
}

func TestWriteResponse_OmitsEmptyResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteResponse(&buf, Response{ID: 1, OK: false, Error: "denied"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != `{"id":1,"ok":false,"error":"denied"}`+"\n" {
		t.Errorf("WriteResponse() = %q", got)
	}
}
