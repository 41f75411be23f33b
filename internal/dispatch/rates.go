package dispatch

import "rana/internal/llm"

// Built-in rate tables, USD per 1K tokens. Costs are fixed at record-creation
// time, so editing these never rewrites history.
var (
	anthropicRates = llm.RateTable{
		"claude-opus-4-1":   {InputPerKTokUSD: 0.015, OutputPerKTokUSD: 0.075},
		"claude-sonnet-4-5": {InputPerKTokUSD: 0.003, OutputPerKTokUSD: 0.015},
		"claude-haiku-4-5":  {InputPerKTokUSD: 0.001, OutputPerKTokUSD: 0.005},
	}

	openaiRates = llm.RateTable{
		"gpt-4o":      {InputPerKTokUSD: 0.0025, OutputPerKTokUSD: 0.01},
		"gpt-4o-mini": {InputPerKTokUSD: 0.00015, OutputPerKTokUSD: 0.0006},
	}

	groqRates = llm.RateTable{
		"llama-3.3-70b-versatile": {InputPerKTokUSD: 0.00059, OutputPerKTokUSD: 0.00079},
		"llama-3.1-8b-instant":    {InputPerKTokUSD: 0.00005, OutputPerKTokUSD: 0.00008},
	}
)

// DefaultEntry returns the built-in registration for a known provider name,
// leaving Provider for the caller to attach.
func DefaultEntry(name string) (Entry, bool) {
	switch name {
	case llm.ProviderAnthropic:
		return Entry{
			Rates:         anthropicRates,
			DefaultModel:  "claude-sonnet-4-5",
			BestModel:     "claude-opus-4-1",
			CheapestModel: "claude-haiku-4-5",
		}, true
	case llm.ProviderOpenAI:
		return Entry{
			Rates:         openaiRates,
			DefaultModel:  "gpt-4o",
			BestModel:     "gpt-4o",
			CheapestModel: "gpt-4o-mini",
		}, true
	case llm.ProviderGroq:
		return Entry{
			Rates:         groqRates,
			DefaultModel:  "llama-3.3-70b-versatile",
			BestModel:     "llama-3.3-70b-versatile",
			CheapestModel: "llama-3.1-8b-instant",
		}, true
	}
	return Entry{}, false
}
