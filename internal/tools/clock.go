package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const clockToolName = "clock"

// ClockTool reports the current time.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool constructs the clock tool.
func NewClockTool() ClockTool {
	return ClockTool{now: time.Now}
}

func (ClockTool) Name() string { return clockToolName }

func (ClockTool) Description() string {
	return "Get the current date and time, optionally in a named IANA timezone."
}

type clockParams struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name"`
}

var clockSchema = mustSchema(clockToolName, clockParams{})

func (ClockTool) Schema() json.RawMessage { return clockSchema }

func (c ClockTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	var input clockParams
	if err := decodeParams(params, &input); err != nil {
		return Result{}, fmt.Errorf("decode clock params: %w", err)
	}

	now := c.now()
	if input.Timezone != "" {
		loc, err := time.LoadLocation(input.Timezone)
		if err != nil {
			return Result{}, fmt.Errorf("unknown timezone %q", input.Timezone)
		}
		now = now.In(loc)
	}
	return Result{Content: now.Format(time.RFC3339)}, nil
}
