package openrouter

// ModelPricing contains per-token pricing for OpenRouter models.
// Prices are in USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing holds hardcoded pricing for the models breakdown runs use.
// TODO: pull pricing from the OpenRouter models endpoint instead of hardcoding
var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o": {
		PromptPrice:     2.50,
		CompletionPrice: 10.00,
	},
	"openai/gpt-4o-mini": {
		PromptPrice:     0.15,
		CompletionPrice: 0.60,
	},
	"openai/gpt-4-turbo": {
		PromptPrice:     10.00,
		CompletionPrice: 30.00,
	},
	"anthropic/claude-3.5-sonnet": {
		PromptPrice:     3.00,
		CompletionPrice: 15.00,
	},
	"anthropic/claude-3-haiku": {
		PromptPrice:     0.25,
		CompletionPrice: 1.25,
	},
	"google/gemini-pro-1.5": {
		PromptPrice:     1.25,
		CompletionPrice: 5.00,
	},
	"google/gemini-flash-1.5": {
		PromptPrice:     0.075,
		CompletionPrice: 0.30,
	},
	"meta-llama/llama-3.1-70b-instruct": {
		PromptPrice:     0.52,
		CompletionPrice: 0.75,
	},
}

// DefaultPricingFallback is charged per request when model pricing is
// unknown. Conservative one-cent estimate.
const DefaultPricingFallback = 0.01

// CalculateCost computes the USD cost of an API call from token usage.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}

	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice

	return promptCost + completionCost
}

// GetPricing returns pricing information for a model, if known.
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
