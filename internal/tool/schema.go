package tool

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/descriptor.schema.json
var schemaFS embed.FS

const descriptorSchemaURL = "descriptor.schema.json"

var descriptorSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + descriptorSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing descriptor schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(descriptorSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding descriptor schema: %w", err)
	}
	return c.Compile(descriptorSchemaURL)
})

// checkDescriptorShape validates one raw descriptor object against the
// embedded descriptor file schema.
func checkDescriptorShape(raw json.RawMessage) error {
	sch, err := descriptorSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	return nil
}

// ArgumentSchema builds a JSON Schema document describing the arguments a
// tool accepts.
func ArgumentSchema(d Descriptor) map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := make([]any, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{}
		if p.Type != TypeAny && p.Type != "" {
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required && !p.HasDefault {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileArgumentSchema(d Descriptor) (*jsonschema.Schema, error) {
	// Round-trip through JSON so the compiler sees plain decoded values.
	raw, err := json.Marshal(ArgumentSchema(d))
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("arguments.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("arguments.json")
}
