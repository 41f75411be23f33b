package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"rana/internal/llm/core"
)

func decodeParams(raw json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	return json.Unmarshal(trimmed, target)
}

// mustSchema reflects a tool's parameter struct into its JSON schema. The
// shapes are fixed at compile time, so a reflection failure is a programming
// error.
func mustSchema(name string, params any) json.RawMessage {
	spec, err := core.NewToolSpecFromStruct(name, "", params)
	if err != nil {
		panic(fmt.Sprintf("tools: reflect %s schema: %v", name, err))
	}
	return spec.Schema
}
