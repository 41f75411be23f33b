package core

// ModelRate is priced in USD per 1K tokens.
type ModelRate struct {
	InputPerKTokUSD  float64
	OutputPerKTokUSD float64
}

// Cost is the computed price of one request, fixed at record-creation time.
type Cost struct {
	InputUSD  float64 `json:"input_usd"`
	OutputUSD float64 `json:"output_usd"`
	TotalUSD  float64 `json:"total_usd"`
}

// CalculateCost returns the USD cost split for the usage snapshot.
// An all-zero rate (unknown model) yields a zero cost, never an error.
func CalculateCost(u Usage, r ModelRate) Cost {
	input := (float64(u.PromptTokens) / 1000.0) * r.InputPerKTokUSD
	output := (float64(u.CompletionTokens) / 1000.0) * r.OutputPerKTokUSD
	return Cost{
		InputUSD:  input,
		OutputUSD: output,
		TotalUSD:  input + output,
	}
}

// RateTable maps model name to its token rate.
type RateTable map[string]ModelRate

// Lookup returns the rate for model, or a zero rate when the model is unknown.
func (t RateTable) Lookup(model string) ModelRate {
	return t[model]
}
