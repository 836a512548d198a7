package agentloom

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/agentloom/agentloom/providers"
)

// ModelCostConfig holds a model's pricing in USD per million tokens.
type ModelCostConfig struct {
	InputCostPer1MTokens  float64
	OutputCostPer1MTokens float64
}

// DefaultModelCosts is the fallback pricing table, consulted when dynamic
// pricing is disabled, the feed is unreachable, or the model is missing from
// the feed. Prices registered with RegisterModelCost win over both.
var DefaultModelCosts = map[string]ModelCostConfig{
	"gpt-4o":                 {InputCostPer1MTokens: 5.00, OutputCostPer1MTokens: 15.00},
	"gpt-4o-2024-11-20":      {InputCostPer1MTokens: 2.50, OutputCostPer1MTokens: 10.00},
	"gpt-4o-mini":            {InputCostPer1MTokens: 0.150, OutputCostPer1MTokens: 0.600},
	"gpt-4o-mini-2024-07-18": {InputCostPer1MTokens: 0.150, OutputCostPer1MTokens: 0.600},
	"gpt-4-turbo":            {InputCostPer1MTokens: 10.00, OutputCostPer1MTokens: 30.00},
	"gpt-4-turbo-2024-04-09": {InputCostPer1MTokens: 10.00, OutputCostPer1MTokens: 30.00},
	"claude-sonnet-4-5":      {InputCostPer1MTokens: 3.00, OutputCostPer1MTokens: 15.00},
	"claude-haiku-4-5":       {InputCostPer1MTokens: 1.00, OutputCostPer1MTokens: 5.00},
	"claude-opus-4-1":        {InputCostPer1MTokens: 15.00, OutputCostPer1MTokens: 75.00},
}

// DisableCostCalculation skips cost estimation entirely when set.
var DisableCostCalculation = false

// ModelPricingAPIURL is the pricing feed endpoint. Empty disables dynamic
// pricing and leaves only the fallback table.
var ModelPricingAPIURL = "https://models.dev/api.json"

// ModelPricingTimeout bounds the pricing feed fetch.
var ModelPricingTimeout = 5 * time.Second

var (
	costsMutex        sync.RWMutex
	dynamicModelCosts = make(map[string]ModelCostConfig)
	costsFetched      bool
	fetchOnce         sync.Once
)

// parsePricingFeed decodes the feed payload, a JSON object keyed by model
// name. Entries without a usable price, and entries that are not models at
// all, are skipped rather than failing the whole feed.
func parsePricingFeed(body []byte) (map[string]ModelCostConfig, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	costs := make(map[string]ModelCostConfig, len(raw))
	for model, data := range raw {
		var entry struct {
			Input  float64 `json:"input"`
			Output float64 `json:"output"`
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Input > 0 || entry.Output > 0 {
			costs[model] = ModelCostConfig{
				InputCostPer1MTokens:  entry.Input,
				OutputCostPer1MTokens: entry.Output,
			}
		}
	}

	return costs, nil
}

// fetchModelCosts starts a background fetch of the pricing feed. Lookups keep
// answering from whatever table is current, and a failed fetch changes
// nothing, so this never blocks or surfaces an error.
func fetchModelCosts() {
	if ModelPricingAPIURL == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ModelPricingTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ModelPricingAPIURL, nil)
		if err != nil {
			return
		}

		client := &http.Client{Timeout: ModelPricingTimeout}
		resp, err := client.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return
		}

		costs, err := parsePricingFeed(body)
		if err != nil {
			return
		}

		costsMutex.Lock()
		for model, cfg := range costs {
			dynamicModelCosts[model] = cfg
		}
		costsFetched = true
		costsMutex.Unlock()
	}()
}

// getModelCost looks up pricing: registered and feed prices first, then the
// fallback table. The first lookup kicks off the background feed fetch.
func getModelCost(model string) (ModelCostConfig, bool) {
	fetchOnce.Do(fetchModelCosts)

	costsMutex.RLock()
	cost, ok := dynamicModelCosts[model]
	costsMutex.RUnlock()
	if ok {
		return cost, true
	}

	if cost, ok := DefaultModelCosts[model]; ok {
		return cost, true
	}

	return ModelCostConfig{}, false
}

// CalculateCost estimates the USD cost of an LLM call from its token counts.
// It returns nil when cost calculation is disabled, no tokens were used, or
// the model's pricing is unknown.
//
// Providers report token usage but never cost, so this is always an
// estimate: feed pricing when the fetch has landed, the fallback table
// otherwise.
func CalculateCost(model string, promptTokens, completionTokens int) *CostInfo {
	if DisableCostCalculation {
		return nil
	}
	if promptTokens == 0 && completionTokens == 0 {
		return nil
	}

	cfg, ok := getModelCost(model)
	if !ok {
		return nil
	}

	promptCost := float64(promptTokens) * cfg.InputCostPer1MTokens / 1_000_000.0
	completionCost := float64(completionTokens) * cfg.OutputCostPer1MTokens / 1_000_000.0

	return &CostInfo{
		PromptCost:     promptCost,
		CompletionCost: completionCost,
		TotalCost:      promptCost + completionCost,
	}
}

// CostForUsage estimates the cost for an accumulated usage total. Reasoning
// tokens are already folded into the completion count and are not billed
// separately.
func CostForUsage(model string, usage providers.TokenUsage) *CostInfo {
	return CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
}

// RegisterModelCost sets custom pricing for a model. Registered prices take
// precedence over both feed and fallback pricing.
func RegisterModelCost(model string, config ModelCostConfig) {
	costsMutex.Lock()
	defer costsMutex.Unlock()
	dynamicModelCosts[model] = config
}

// RefreshModelCosts re-fetches the pricing feed, for long-running processes
// that want updated rates without a restart.
func RefreshModelCosts() {
	if ModelPricingAPIURL == "" {
		return
	}

	costsMutex.Lock()
	costsFetched = false
	costsMutex.Unlock()

	fetchModelCosts()
}
