package dispatch

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"rana/internal/llm"
)

// Estimator approximates token counts locally, for providers whose responses
// omit usage and for pre-dispatch logging. Encoders are cached per model.
type Estimator struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewEstimator builds an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Count estimates tokens in text under model's encoding. Unknown models fall
// back to cl100k_base; if no encoder can be loaded at all, a bytes/4
// approximation keeps the estimate non-fatal.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encoder(model)
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages estimates the prompt tokens of a conversation, including a
// small per-message framing overhead.
func (e *Estimator) CountMessages(model, system string, messages []llm.Message) int {
	const perMessageOverhead = 4

	total := e.Count(model, system)
	for _, m := range messages {
		total += e.Count(model, m.Content) + perMessageOverhead
		for _, tc := range m.ToolCalls {
			total += e.Count(model, tc.Name) + e.Count(model, string(tc.Arguments))
		}
		if m.ToolResult != nil {
			total += e.Count(model, m.ToolResult.Content)
		}
	}
	return total
}

func (e *Estimator) encoder(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	e.encoders[model] = enc
	return enc
}
