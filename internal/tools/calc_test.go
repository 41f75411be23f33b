package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestCalcToolEvaluates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		want       string
	}{
		{"1+1", "2"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"-5 + 3", "-2"},
		{"--5", "5"},
		{"2 * (3 + (4 - 1))", "12"},
		{"0.1 + 0.2", "0.30000000000000004"},
	}

	tool := NewCalcTool()
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			params, _ := json.Marshal(map[string]string{"expression": tt.expression})
			result, err := tool.Execute(context.Background(), params)
			if err != nil {
				t.Fatalf("Execute(%q) error = %v", tt.expression, err)
			}
			if result.Content != tt.want {
				t.Errorf("Execute(%q) = %q, want %q", tt.expression, result.Content, tt.want)
			}
		})
	}
}

func TestCalcToolRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"1 +",
		"(1 + 2",
		"1 / 0",
		"two plus two",
		"1 + $",
	}

	tool := NewCalcTool()
	for _, expression := range tests {
		t.Run(fmt.Sprintf("%q", expression), func(t *testing.T) {
			params, _ := json.Marshal(map[string]string{"expression": expression})
			if _, err := tool.Execute(context.Background(), params); err == nil {
				t.Errorf("Execute(%q) succeeded, want error", expression)
			}
		})
	}
}

func TestCalcToolSchemaRequiresExpression(t *testing.T) {
	t.Parallel()

	schema := decodeSchema(t, NewCalcTool().Schema())
	if schema.Type != "object" {
		t.Fatalf("schema type = %q, want object", schema.Type)
	}
	if _, ok := schema.Properties["expression"]; !ok {
		t.Fatalf("schema properties = %v, want expression", schema.Properties)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "expression" {
		t.Fatalf("schema required = %v, want [expression]", schema.Required)
	}
}
