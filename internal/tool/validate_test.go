package tool

import (
	"errors"
	"slices"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		desc   Descriptor
		issues int
	}{
		{name: "valid", desc: Descriptor{Name: "echo", Parameters: []ParameterSpec{{Name: "input", Type: TypeString}}}},
		{name: "empty name", desc: Descriptor{Name: " "}, issues: 1},
		{name: "whitespace in name", desc: Descriptor{Name: "http get"}, issues: 1},
		{name: "duplicate params", desc: Descriptor{Name: "x", Parameters: []ParameterSpec{
			{Name: "a", Type: TypeAny}, {Name: "a", Type: TypeAny},
		}}, issues: 1},
		{name: "unknown type", desc: Descriptor{Name: "x", Parameters: []ParameterSpec{{Name: "a", Type: "int"}}}, issues: 1},
		{name: "default type mismatch", desc: Descriptor{Name: "x", Parameters: []ParameterSpec{
			{Name: "a", Type: TypeNumber, Default: "ten", HasDefault: true},
		}}, issues: 1},
		{name: "bad return", desc: Descriptor{Name: "x", Returns: &ReturnSpec{Type: "list"}}, issues: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			before := tt.desc
			got := Validate(tt.desc)
			if len(got) != tt.issues {
				t.Fatalf("Validate() = %v, want %d issue(s)", got, tt.issues)
			}
			if before.Name != tt.desc.Name {
				t.Error("Validate must not mutate its input")
			}
		})
	}
}

func TestDecode_SingleObjectAndArray(t *testing.T) {
	t.Parallel()

	descs, errs, err := Decode([]byte(`{"name": "echo", "parameters": [{"name": "input", "type": "string", "required": false}]}`))
	if err != nil || len(errs) != 0 || len(descs) != 1 {
		t.Fatalf("Decode single: descs=%d errs=%v err=%v", len(descs), errs, err)
	}
	if descs[0].Parameters[0].Required {
		t.Error("explicit required=false must be kept")
	}

	descs, errs, err = Decode([]byte(`[{"name": "a"}, {"name": ""}, {"name": "b"}]`))
	if err != nil {
		t.Fatalf("Decode array: %v", err)
	}
	if len(descs) != 2 || len(errs) != 1 {
		t.Fatalf("descs=%d errs=%d", len(descs), len(errs))
	}
	var derr *DecodeError
	if !errors.As(errs[0], &derr) || derr.Index != 1 {
		t.Errorf("error should point at index 1: %v", errs[0])
	}
}

func TestDecode_EmptyFile(t *testing.T) {
	t.Parallel()

	if _, _, err := Decode([]byte("  \n")); !errors.Is(err, ErrMalformedDescriptor) {
		t.Fatalf("expected ErrMalformedDescriptor, got %v", err)
	}
}

func TestDecode_DuplicateMapParameters(t *testing.T) {
	t.Parallel()

	_, errs, err := Decode([]byte(`{"name": "x", "parameters": {"a": {}, "a": {"type": "string"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrMalformedDescriptor) {
		t.Fatalf("errs = %v", errs)
	}
}

func TestDecode_ExplicitNullDefault(t *testing.T) {
	t.Parallel()

	descs, _, err := Decode([]byte(`{"name": "x", "parameters": {"cursor": {"type": "null", "default": null}}}`))
	if err != nil || len(descs) != 1 {
		t.Fatalf("Decode: %v", err)
	}
	p := descs[0].Parameters[0]
	if !p.HasDefault || p.Default != nil {
		t.Errorf("explicit null default lost: %+v", p)
	}
}

func TestDescriptorEffects(t *testing.T) {
	t.Parallel()

	d := Descriptor{Name: "http_post", SideEffects: []string{" Write ", "network"}}
	got := d.Effects()
	want := []string{SideEffectNetwork, SideEffectWrite}
	if !slices.Equal(got, want) {
		t.Errorf("Effects() = %v, want %v", got, want)
	}
}
