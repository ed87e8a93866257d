package pipeline

import (
	"fmt"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils"
)

// Annotate labels capital intensity and promotes one representative leg per
// candidate. Metadata only — it never causes a rejection and never drops a
// row.
func Annotate(candidates []types.StrategyCandidate) ([]types.StrategyCandidate, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		annotateCapital(&out[i])
		promoteLeg(&out[i])
	}

	if len(out) != len(candidates) {
		return nil, &IntegrityError{Stage: "annotator",
			Detail: fmt.Sprintf("row count drifted: %d in, %d out", len(candidates), len(out))}
	}
	return out, nil
}

// annotateCapital estimates the notional/margin a single unit of the
// structure ties up, and buckets it descriptively.
func annotateCapital(cand *types.StrategyCandidate) {
	if len(cand.Contracts) == 0 {
		cand.Capital = types.CapitalLight
		cand.CapitalEstimate = 0
		return
	}

	estimate := 0.0
	switch cand.Strategy {
	case types.StrategyIncome:
		// cash-secured short leg: the strike defines the capital at risk,
		// offset by the premium collected
		for _, leg := range cand.Contracts {
			estimate += leg.Strike*100 - leg.Mid()*100
		}
	default:
		// debit structures: premium paid per leg
		for _, leg := range cand.Contracts {
			estimate += leg.Mid() * 100
		}
	}
	cand.CapitalEstimate = utils.Max(estimate, 0)

	switch {
	case cand.CapitalEstimate < 1000:
		cand.Capital = types.CapitalLight
	case cand.CapitalEstimate < 5000:
		cand.Capital = types.CapitalStandard
	case cand.CapitalEstimate < 15000:
		cand.Capital = types.CapitalHeavy
	default:
		cand.Capital = types.CapitalVeryHeavy
	}
}

// promoteLeg picks the representative contract for scoring and display by
// strategy-specific rule: the short leg for a credit structure, the leg with
// the greatest volatility exposure for a volatility structure, the most
// delta-neutral leg for a neutral one, the only leg otherwise.
func promoteLeg(cand *types.StrategyCandidate) {
	if len(cand.Contracts) == 0 {
		cand.PromotedLeg = -1
		return
	}
	if len(cand.Contracts) == 1 {
		cand.PromotedLeg = 0
		return
	}

	best := 0
	switch cand.Strategy {
	case types.StrategyVolatility:
		for i := 1; i < len(cand.Contracts); i++ {
			if cand.Contracts[i].Vega > cand.Contracts[best].Vega {
				best = i
			}
		}
	case types.StrategyNeutral:
		for i := 1; i < len(cand.Contracts); i++ {
			if utils.Abs(cand.Contracts[i].Delta) < utils.Abs(cand.Contracts[best].Delta) {
				best = i
			}
		}
	default:
		// multi-leg directional/income: the leg that defines maximum loss,
		// i.e. the most expensive one
		for i := 1; i < len(cand.Contracts); i++ {
			if cand.Contracts[i].Mid() > cand.Contracts[best].Mid() {
				best = i
			}
		}
	}
	cand.PromotedLeg = best
}
