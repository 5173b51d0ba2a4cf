package ai

import "math"

// ModelPrice is denominated in USD per million tokens.
type ModelPrice struct {
	Prompt       float64 `mapstructure:"prompt" json:"prompt"`
	PromptCached float64 `mapstructure:"prompt-cached" json:"prompt_cached"`
	Completion   float64 `mapstructure:"completion" json:"completion"`
}

// PriceTable maps a model identifier to its price.
type PriceTable map[string]ModelPrice

// DefaultPrices returns the built-in price table. Configuration may extend or override it.
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4o-mini":      {Prompt: 0.15, PromptCached: 0.075, Completion: 0.60},
		"gpt-4o":           {Prompt: 2.50, PromptCached: 1.25, Completion: 10.00},
		"gpt-4.1-mini":     {Prompt: 0.40, PromptCached: 0.10, Completion: 1.60},
		"gemini-2.5-flash": {Prompt: 0.30, PromptCached: 0.075, Completion: 2.50},
		"gemini-2.5-pro":   {Prompt: 1.25, PromptCached: 0.31, Completion: 10.00},
	}
}

// Merge returns a new table with entries from other taking precedence.
func (t PriceTable) Merge(other PriceTable) PriceTable {
	merged := make(PriceTable, len(t)+len(other))
	for model, price := range t {
		merged[model] = price
	}
	for model, price := range other {
		merged[model] = price
	}
	return merged
}

// Cost prices a call. Unknown models cost nothing.
func (t PriceTable) Cost(model string, usage Usage) float64 {
	price, ok := t[model]
	if !ok {
		return 0
	}

	cached := max(usage.CachedPromptTokens, 0)
	live := max(usage.PromptTokens-cached, 0)
	completion := max(usage.CompletionTokens, 0)

	cost := (float64(live)*price.Prompt +
		float64(cached)*price.PromptCached +
		float64(completion)*price.Completion) / 1_000_000

	return RoundCost(cost)
}

// RoundCost rounds to 6 decimal places.
func RoundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
