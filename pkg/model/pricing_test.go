package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestEstimateCost(t *testing.T) {
	table := &model.PricingTable{Models: map[string]model.ModelPricing{
		"gemini-2.5-flash": {Input: 0.25, CachedInput: 0.125, Output: 2.5},
	}}

	t.Run("known model", func(t *testing.T) {
		cost := table.Estimate(model.Usage{
			Model:            "gemini-2.5-flash",
			PromptTokens:     1_000_000,
			CompletionTokens: 1_000_000,
		})
		gt.NotNil(t, cost)
		gt.Equal(t, *cost, 2.75)
	})

	t.Run("cached prompt discount", func(t *testing.T) {
		cost := table.Estimate(model.Usage{
			Model:              "gemini-2.5-flash",
			PromptTokens:       1_000_000,
			CachedPromptTokens: 1_000_000,
		})
		gt.NotNil(t, cost)
		gt.Equal(t, *cost, 0.125)
	})

	t.Run("unknown model", func(t *testing.T) {
		cost := table.Estimate(model.Usage{Model: "mystery", PromptTokens: 100})
		gt.Nil(t, cost)
	})

	t.Run("nil table", func(t *testing.T) {
		var none *model.PricingTable
		gt.Nil(t, none.Estimate(model.Usage{Model: "any"}))
	})
}

func TestLoadPricing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	content := []byte(`models:
  gpt-5-mini:
    input: 0.25
    cached_input: 0.025
    output: 2.0
`)
	gt.NoError(t, os.WriteFile(path, content, 0o644))

	table, err := model.LoadPricing(path)
	gt.NoError(t, err)

	rates, ok := table.Models["gpt-5-mini"]
	gt.True(t, ok)
	gt.Equal(t, rates.Input, 0.25)
	gt.Equal(t, rates.Output, 2.0)
}

func TestUsageAdd(t *testing.T) {
	var u model.Usage
	u.Add(model.Usage{Model: "m1", PromptTokens: 10, CompletionTokens: 5})
	u.Add(model.Usage{Model: "m2", PromptTokens: 3, CachedPromptTokens: 2})

	gt.Equal(t, u.Model, "m1")
	gt.Equal(t, u.PromptTokens, int64(13))
	gt.Equal(t, u.CachedPromptTokens, int64(2))
	gt.Equal(t, u.CompletionTokens, int64(5))
}
