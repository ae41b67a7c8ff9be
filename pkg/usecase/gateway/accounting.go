package gateway

import (
	"fmt"

	"github.com/m-mizutani/chack/pkg/model"
)

// RoundAccounting accumulates per-turn counters. It starts at zero for every
// turn and is rendered into the reply suffix at turn end; it is never
// persisted and never affects control flow.
type RoundAccounting struct {
	Rounds    int
	MaxRounds int
	ToolCalls int
	Usage     model.Usage

	pricing *model.PricingTable
}

func NewRoundAccounting(maxRounds int, pricing *model.PricingTable) *RoundAccounting {
	return &RoundAccounting{
		MaxRounds: maxRounds,
		pricing:   pricing,
	}
}

// AddUsage accumulates backend-reported usage for this turn.
func (a *RoundAccounting) AddUsage(u model.Usage) {
	a.Usage.Add(u)
}

// CostUSD estimates the turn cost, nil when the model is not priced.
func (a *RoundAccounting) CostUSD() *float64 {
	return a.pricing.Estimate(a.Usage)
}

// Suffix renders the human-readable accounting trailer appended to the final
// reply.
func (a *RoundAccounting) Suffix() string {
	cost := "unknown"
	if c := a.CostUSD(); c != nil {
		cost = fmt.Sprintf("$%.6f", *c)
	}
	return fmt.Sprintf("\n\n🔁 %d/%d | 🧰 %d | 💲 %s", a.Rounds, a.MaxRounds, a.ToolCalls, cost)
}
