package llm

// PriceEntry is USD per million tokens.
type PriceEntry struct {
	Provider string
	Input    float64
	Output   float64
}

// Pricing covers the models agents are allowed to pick in the
// dashboard. Unknown models cost $0 rather than failing the turn.
var Pricing = map[string]PriceEntry{
	"gpt-4o":                    {Provider: "openai", Input: 2.50, Output: 10.00},
	"gpt-4o-mini":               {Provider: "openai", Input: 0.15, Output: 0.60},
	"gpt-4.1":                   {Provider: "openai", Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":              {Provider: "openai", Input: 0.40, Output: 1.60},
	"claude-sonnet-4-20250514":  {Provider: "anthropic", Input: 3.00, Output: 15.00},
	"claude-haiku-4-5-20251001": {Provider: "anthropic", Input: 1.00, Output: 5.00},
	"claude-3-5-haiku-20241022": {Provider: "anthropic", Input: 0.80, Output: 4.00},
	"text-embedding-3-small":    {Provider: "openai", Input: 0.02, Output: 0},
}

// CalculateCost converts token usage into USD for the given model.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	entry, ok := Pricing[model]
	if !ok {
		return 0.0
	}
	return (float64(inputTokens) * entry.Input / 1_000_000) +
		(float64(outputTokens) * entry.Output / 1_000_000)
}
