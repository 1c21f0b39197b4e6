package usage

import "github.com/agenthands/docgraph/internal/config"

// Pricing maps a model to its price in USD per million tokens.
type Pricing map[string]config.Price

// Cost is zero for models without a price entry.
func (p Pricing) Cost(model string, promptTokens, completionTokens int) float64 {
	price, ok := p[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*price.Input + float64(completionTokens)*price.Output) / 1_000_000
}
