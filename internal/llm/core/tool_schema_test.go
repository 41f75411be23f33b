package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewToolSpecFromStruct(t *testing.T) {
	t.Parallel()

	type input struct {
		Expression string `json:"expression"`
		Precision  int    `json:"precision,omitempty"`
	}

	spec, err := NewToolSpecFromStruct("calc", "Evaluate an arithmetic expression", input{})
	if err != nil {
		t.Fatalf("NewToolSpecFromStruct() error = %v", err)
	}
	if spec.Name != "calc" {
		t.Fatalf("name mismatch: got %q want %q", spec.Name, "calc")
	}
	if !json.Valid(spec.Schema) {
		t.Fatalf("schema is not valid json: %s", string(spec.Schema))
	}

	decoded, err := DecodeToolJSONSchema(spec.Schema)
	if err != nil {
		t.Fatalf("DecodeToolJSONSchema() error = %v", err)
	}
	if decoded.Type != "object" {
		t.Fatalf("schema type = %q, want object", decoded.Type)
	}
	if _, ok := decoded.Properties["expression"]; !ok {
		t.Fatalf("schema properties = %v, want expression", decoded.Properties)
	}
	if len(decoded.Required) != 1 || decoded.Required[0] != "expression" {
		t.Fatalf("schema required = %v, want [expression] only", decoded.Required)
	}
}

func TestNewToolSpecFromStructAcceptsPointer(t *testing.T) {
	t.Parallel()

	type input struct {
		Timezone string `json:"timezone,omitempty"`
	}

	spec, err := NewToolSpecFromStruct("clock", "Get the current time", &input{})
	if err != nil {
		t.Fatalf("NewToolSpecFromStruct() error = %v", err)
	}
	decoded, err := DecodeToolJSONSchema(spec.Schema)
	if err != nil {
		t.Fatalf("DecodeToolJSONSchema() error = %v", err)
	}
	if len(decoded.Required) != 0 {
		t.Fatalf("schema required = %v, want none", decoded.Required)
	}
}

func TestNewToolSpecFromStructRejectsNonStruct(t *testing.T) {
	t.Parallel()

	if _, err := NewToolSpecFromStruct("calc", "Evaluate an arithmetic expression", 42); err == nil {
		t.Fatalf("expected error for non-struct schema input")
	}
	if _, err := NewToolSpecFromStruct("calc", "Evaluate an arithmetic expression", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for nil schema input, got %v", err)
	}
}

func TestDecodeJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     json.RawMessage
		want    map[string]any
		wantErr bool
		errIs   error
	}{
		{
			name: "empty",
			raw:  json.RawMessage("  "),
			want: map[string]any{},
		},
		{
			name: "valid object",
			raw:  json.RawMessage(`{"expression":"1+1","precision":2}`),
			want: map[string]any{"expression": "1+1", "precision": float64(2)},
		},
		{
			name:    "invalid json",
			raw:     json.RawMessage("{"),
			wantErr: true,
			errIs:   ErrInvalidRequest,
		},
		{
			name:    "non-object json",
			raw:     json.RawMessage(`[1,2,3]`),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeJSONObject(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errIs != nil && !errors.Is(err, tc.errIs) {
					t.Fatalf("expected error to wrap %v, got %v", tc.errIs, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("DecodeJSONObject() error = %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("map size mismatch: got %d want %d, map=%#v", len(got), len(tc.want), got)
			}
			for key, wantValue := range tc.want {
				if got[key] != wantValue {
					t.Fatalf("value mismatch for key %q: got=%v want=%v", key, got[key], wantValue)
				}
			}
		})
	}
}

func TestDecodeJSONObjectOrEmpty(t *testing.T) {
	t.Parallel()

	got := DecodeJSONObjectOrEmpty(json.RawMessage("{"))
	if len(got) != 0 {
		t.Fatalf("expected empty object on invalid json, got %#v", got)
	}

	got = DecodeJSONObjectOrEmpty(json.RawMessage(`{"action":"get"}`))
	if got["action"] != "get" {
		t.Fatalf("unexpected decoded object: %#v", got)
	}
}
