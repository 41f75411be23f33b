package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// Inline schemas, closed objects: provider wire formats want one flat
// object per tool, not a $defs graph.
var toolSchemaReflector = jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// toolJSONSchema is the normalized object shape every tool schema is reduced
// to before it crosses a provider boundary.
type toolJSONSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// ToolJSONSchema is the normalized object-schema used by provider mappings.
type ToolJSONSchema = toolJSONSchema

// NewToolSpecFromStruct reflects a tool's parameter struct into a ToolSpec.
// Field presence follows the json tags: fields without omitempty are
// required; jsonschema tags add enums and descriptions.
func NewToolSpecFromStruct(name, description string, schemaStruct any) (ToolSpec, error) {
	target, err := structTarget(schemaStruct)
	if err != nil {
		return ToolSpec{}, err
	}

	raw, err := json.Marshal(toolSchemaReflector.Reflect(target))
	if err != nil {
		return ToolSpec{}, fmt.Errorf("marshal reflected tool schema: %w", err)
	}
	schema, err := normalizeToolSchema(raw)
	if err != nil {
		return ToolSpec{}, err
	}

	return ToolSpec{
		Name:        name,
		Description: description,
		Schema:      schema,
	}, nil
}

// structTarget rejects non-struct inputs and returns a fresh pointer the
// reflector can walk.
func structTarget(schemaStruct any) (any, error) {
	t := reflect.TypeOf(schemaStruct)
	if t == nil {
		return nil, fmt.Errorf("%w: schema struct is nil", ErrInvalidRequest)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: schema struct must be a struct or pointer to struct", ErrInvalidRequest)
	}
	return reflect.New(t).Interface(), nil
}

// normalizeToolSchema strips reflector metadata down to the canonical
// type/properties/required triple.
func normalizeToolSchema(raw json.RawMessage) (json.RawMessage, error) {
	decoded, err := DecodeToolJSONSchema(raw)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized tool schema: %w", err)
	}
	return normalized, nil
}

// DecodeToolJSONSchema validates and normalizes a tool schema JSON object.
// Empty input yields an empty object schema.
func DecodeToolJSONSchema(raw json.RawMessage) (toolJSONSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return toolJSONSchema{
			Type:       "object",
			Properties: map[string]any{},
		}, nil
	}

	var schema toolJSONSchema
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return toolJSONSchema{}, fmt.Errorf("%w: invalid tool schema json", ErrInvalidRequest)
	}

	if strings.TrimSpace(schema.Type) == "" {
		schema.Type = "object"
	}
	if schema.Type != "object" {
		return toolJSONSchema{}, fmt.Errorf("%w: tool schema type must be object", ErrInvalidRequest)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}

	return schema, nil
}

// DecodeJSONObject validates and decodes a JSON object into a map.
func DecodeJSONObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: invalid tool input json", ErrInvalidRequest)
	}
	obj := map[string]any{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return obj, nil
}

// DecodeJSONObjectOrEmpty decodes JSON object input, falling back to an
// empty map when the payload is malformed. Providers use it for tool-call
// arguments where a broken payload should degrade, not abort the stream.
func DecodeJSONObjectOrEmpty(raw json.RawMessage) map[string]any {
	obj, err := DecodeJSONObject(raw)
	if err != nil {
		return map[string]any{}
	}
	return obj
}
