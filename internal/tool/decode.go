package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type rawDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Parameters  json.RawMessage `json:"parameters"`
	Returns     json.RawMessage `json:"returns"`
	Examples    []Example       `json:"examples"`
	Server      string          `json:"server"`
	SideEffects []string        `json:"side_effects"`
}

type rawParameter struct {
	Name        string          `json:"name"`
	Type        TypeTag         `json:"type"`
	Required    *bool           `json:"required"`
	Default     json.RawMessage `json:"default"`
	Description string          `json:"description"`
}

// DecodeError reports a single descriptor inside a file that could not be
// normalized.
type DecodeError struct {
	Index int
	Name  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("descriptor %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("descriptor %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads a descriptor file holding either one descriptor object or an
// array of them. Descriptors that fail normalization are reported in errs and
// left out of the returned slice.
func Decode(data []byte) (descs []Descriptor, errs []error, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMalformedDescriptor)
	}

	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
		}
	} else {
		items = []json.RawMessage{trimmed}
	}

	for i, item := range items {
		d, derr := decodeOne(item)
		if derr != nil {
			errs = append(errs, &DecodeError{Index: i, Name: d.Name, Err: derr})
			continue
		}
		descs = append(descs, d)
	}
	return descs, errs, nil
}

func decodeOne(item json.RawMessage) (Descriptor, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(item, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	d := Descriptor{
		Name:        strings.TrimSpace(raw.Name),
		Description: strings.TrimSpace(raw.Description),
		Category:    strings.TrimSpace(raw.Category),
		Examples:    raw.Examples,
		Server:      strings.TrimSpace(raw.Server),
		SideEffects: raw.SideEffects,
	}
	if d.Name == "" {
		return d, fmt.Errorf("%w: missing name", ErrMalformedDescriptor)
	}
	if err := checkDescriptorShape(item); err != nil {
		return d, err
	}

	params, err := decodeParameters(raw.Parameters)
	if err != nil {
		return d, err
	}
	d.Parameters = params

	ret, err := decodeReturns(raw.Returns)
	if err != nil {
		return d, err
	}
	d.Returns = ret

	if issues := Validate(d); len(issues) > 0 {
		return d, fmt.Errorf("%w: %s", ErrMalformedDescriptor, issues[0])
	}
	return d, nil
}

// decodeParameters accepts either an array of parameter objects or an object
// keyed by parameter name. Object keys keep their file order.
func decodeParameters(raw json.RawMessage) ([]ParameterSpec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []ParameterSpec{}, nil
	}

	var list []rawParameter
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedDescriptor, err)
		}
	case '{':
		keys, values, err := orderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedDescriptor, err)
		}
		for _, k := range keys {
			var p rawParameter
			if err := json.Unmarshal(values[k], &p); err != nil {
				return nil, fmt.Errorf("%w: parameter %q: %v", ErrMalformedDescriptor, k, err)
			}
			p.Name = k
			list = append(list, p)
		}
	default:
		return nil, fmt.Errorf("%w: parameters must be an array or an object", ErrMalformedDescriptor)
	}

	params := make([]ParameterSpec, 0, len(list))
	for _, rp := range list {
		p := ParameterSpec{
			Name:        strings.TrimSpace(rp.Name),
			Type:        rp.Type,
			Required:    true,
			Description: strings.TrimSpace(rp.Description),
		}
		if p.Type == "" {
			p.Type = TypeAny
		}
		if rp.Required != nil {
			p.Required = *rp.Required
		}
		if len(rp.Default) > 0 {
			if err := json.Unmarshal(rp.Default, &p.Default); err != nil {
				return nil, fmt.Errorf("%w: parameter %q default: %v", ErrMalformedDescriptor, p.Name, err)
			}
			p.HasDefault = true
		}
		params = append(params, p)
	}
	return params, nil
}

// decodeReturns accepts the short form "string" or {"type": ..., "description": ...}.
func decodeReturns(raw json.RawMessage) (*ReturnSpec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &ReturnSpec{Type: TypeAny}, nil
	}
	if raw[0] == '"' {
		var tag TypeTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("%w: returns: %v", ErrMalformedDescriptor, err)
		}
		return &ReturnSpec{Type: tag}, nil
	}
	var ret ReturnSpec
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("%w: returns: %v", ErrMalformedDescriptor, err)
	}
	if ret.Type == "" {
		ret.Type = TypeAny
	}
	return &ret, nil
}

// orderedObject decodes the top-level keys of a JSON object in the order they
// appear.
func orderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("expected object")
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, errors.New("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; dup {
			return nil, nil, fmt.Errorf("duplicate parameter %q", key)
		}
		keys = append(keys, key)
		values[key] = v
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	return keys, values, nil
}
