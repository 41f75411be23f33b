package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestClockToolReportsFixedTime(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	tool := ClockTool{now: func() time.Time { return fixed }}

	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Content != "2026-05-04T15:30:00Z" {
		t.Errorf("Execute() = %q", result.Content)
	}
}

func TestClockToolRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	tool := NewClockTool()
	params, _ := json.Marshal(map[string]string{"timezone": "Mars/Olympus"})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Error("Execute() succeeded with bogus timezone, want error")
	}
}

func TestClockToolSchemaTimezoneOptional(t *testing.T) {
	t.Parallel()

	schema := decodeSchema(t, NewClockTool().Schema())
	if _, ok := schema.Properties["timezone"]; !ok {
		t.Fatalf("schema properties = %v, want timezone", schema.Properties)
	}
	if len(schema.Required) != 0 {
		t.Fatalf("schema required = %v, want none", schema.Required)
	}
}
