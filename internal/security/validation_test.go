package security

import (
	"errors"
	"strings"
	"testing"
)

func nested(depth int) string {
	return strings.Repeat(`{"a":`, depth) + "1" + strings.Repeat("}", depth)
}

func TestPayloadLimits_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limits  PayloadLimits
		data    string
		wantErr error
	}{
		{name: "tool arguments", data: `{"url": "https://example.com", "headers": {"accept": "text/html"}}`},
		{name: "scalar", data: `"just a string"`},
		{name: "surrounding whitespace", data: "  \n{\"input\": \"hi\"}\n"},
		{name: "at depth limit", limits: PayloadLimits{MaxDepth: 3}, data: nested(3)},
		{name: "over depth limit", limits: PayloadLimits{MaxDepth: 3}, data: nested(4), wantErr: ErrJSONTooDeep},
		{name: "arrays count", limits: PayloadLimits{MaxDepth: 2}, data: `[[[1]]]`, wantErr: ErrJSONTooDeep},
		{name: "default depth", data: nested(DefaultMaxJSONDepth + 1), wantErr: ErrJSONTooDeep},
		{name: "deep but closed siblings", limits: PayloadLimits{MaxDepth: 2}, data: `[[1],[2],[3]]`},
		{name: "too large", limits: PayloadLimits{MaxBytes: 10}, data: `{"input": "hello world"}`, wantErr: ErrPayloadTooLarge},
		{name: "exactly at size", limits: PayloadLimits{MaxBytes: 2}, data: `{}`},
		{name: "empty", data: "", wantErr: ErrInvalidJSON},
		{name: "truncated", data: `{"input": `, wantErr: ErrInvalidJSON},
		{name: "unclosed array", data: `[1, [2, 3]`, wantErr: ErrInvalidJSON},
		{name: "open object only", data: `{`, wantErr: ErrInvalidJSON},
		{name: "garbage", data: `{input}`, wantErr: ErrInvalidJSON},
		{name: "two documents", data: `{"a":1}{"b":2}`, wantErr: ErrInvalidJSON},
		{name: "trailing scalar", data: `{} 1`, wantErr: ErrInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.limits.Check([]byte(tt.data))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Check = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePayload_UsesLimits(t *testing.T) {
	t.Parallel()

	if err := ValidatePayload([]byte(nested(5)), 0, 4); !errors.Is(err, ErrJSONTooDeep) {
		t.Errorf("depth: %v", err)
	}
	if err := ValidatePayload([]byte(`{"input":"x"}`), 5, 0); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("size: %v", err)
	}
	if err := ValidatePayload([]byte(`{"input":"x"}`), 0, 0); err != nil {
		t.Errorf("defaults: %v", err)
	}
}

func BenchmarkPayloadLimits_Check(b *testing.B) {
	data := []byte(`{"url": "https://example.com", "body": {"items": [1, 2, 3, {"k": "v"}]}}`)
	var l PayloadLimits
	for b.Loop() {
		_ = l.Check(data)
	}
}
