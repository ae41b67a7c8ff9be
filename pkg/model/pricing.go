package model

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// ModelPricing holds per-1M-token rates in USD.
type ModelPricing struct {
	Input       float64 `yaml:"input"`
	CachedInput float64 `yaml:"cached_input"`
	Output      float64 `yaml:"output"`
}

// PricingTable maps model identifiers to their rates.
type PricingTable struct {
	Models map[string]ModelPricing `yaml:"models"`
}

// LoadPricing reads a pricing table from a YAML file.
func LoadPricing(path string) (*PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read pricing file", goerr.V("path", path))
	}

	var table PricingTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, goerr.Wrap(err, "failed to parse pricing file", goerr.V("path", path))
	}
	if table.Models == nil {
		table.Models = map[string]ModelPricing{}
	}

	return &table, nil
}

// Estimate computes the cost of the given usage in USD. It returns nil when
// the model is not in the table, meaning the cost is unknown.
func (t *PricingTable) Estimate(u Usage) *float64 {
	if t == nil {
		return nil
	}
	rates, ok := t.Models[u.Model]
	if !ok {
		return nil
	}

	billable := u.PromptTokens - u.CachedPromptTokens
	if billable < 0 {
		billable = 0
	}
	total := float64(billable)*rates.Input +
		float64(u.CachedPromptTokens)*rates.CachedInput +
		float64(u.CompletionTokens)*rates.Output
	cost := total / 1_000_000.0
	return &cost
}
