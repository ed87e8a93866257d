package pipeline

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
	"github.com/fazecat/optionsmith/Internal/utils/formatting"
)

// Selector makes the single binding decision of the pipeline: at most one
// READY_NOW candidate per instrument, sized within portfolio constraints,
// each carrying a complete five-section justification. A selection that
// cannot be fully justified is excluded — a trade never executes without a
// complete explanation.
type Selector struct {
	CapitalCeiling float64
	MaxPositions   int
	Sizing         config.SizingConfig
	PerTradeCap    float64
}

func NewSelector(cfg *config.Config) *Selector {
	return &Selector{
		CapitalCeiling: cfg.Global.CapitalCeilingUSD,
		MaxPositions:   cfg.Global.MaxPositions,
		Sizing:         cfg.Sizing,
		PerTradeCap:    cfg.Scoring.CapitalCeilingPerTrade,
	}
}

// Select returns the full annotated table plus the final selection rows.
// Only READY_NOW candidates are ever considered; that invariant is enforced
// again on the way out.
func (s *Selector) Select(candidates []types.StrategyCandidate) ([]types.StrategyCandidate, []types.StrategyCandidate, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	// best READY_NOW candidate per instrument by comparator rank
	byInstrument := make(map[string][]int)
	instruments := []string{}
	for i := range out {
		if out[i].Status != types.StatusReadyNow {
			continue
		}
		sym := out[i].InstrumentID
		if _, ok := byInstrument[sym]; !ok {
			instruments = append(instruments, sym)
		}
		byInstrument[sym] = append(byInstrument[sym], i)
	}

	winners := []int{}
	for _, sym := range instruments {
		indices := byInstrument[sym]
		best := indices[0]
		for _, idx := range indices[1:] {
			if out[idx].Rank < out[best].Rank ||
				(out[idx].Rank == out[best].Rank && out[idx].ComparisonScore > out[best].ComparisonScore) {
				best = idx
			}
		}
		winners = append(winners, best)
	}

	// portfolio constraints: strongest comparison scores first, bounded by
	// max positions and the capital ceiling
	sort.Slice(winners, func(a, b int) bool {
		return out[winners[a]].ComparisonScore > out[winners[b]].ComparisonScore
	})

	remaining := s.CapitalCeiling
	selected := []types.StrategyCandidate{}

	for _, idx := range winners {
		cand := &out[idx]
		if len(selected) >= s.MaxPositions {
			break
		}
		if cand.ComparisonScore < s.Sizing.MinComparisonScore {
			continue
		}

		contracts, allocated := s.size(cand, remaining)
		if contracts == 0 {
			log.Printf("💸 %s %s not affordable within remaining ceiling $%.0f",
				cand.InstrumentID, cand.Strategy, remaining)
			continue
		}

		cand.ContractsToOpen = contracts
		cand.AllocatedUSD = allocated
		cand.Justification = s.justify(cand, byInstrument[cand.InstrumentID], out)

		if !cand.Justification.Complete() {
			// invalid without a full explanation; excluded from output
			cand.ContractsToOpen = 0
			cand.AllocatedUSD = 0
			cand.Justification = nil
			log.Printf("🚫 %s %s excluded: incomplete justification record", cand.InstrumentID, cand.Strategy)
			continue
		}

		cand.Selected = true
		remaining -= allocated
		selected = append(selected, *cand)
	}

	// hard invariant: execution-facing output carries only READY_NOW rows
	// with complete justifications
	for _, row := range selected {
		if row.Status != types.StatusReadyNow {
			return nil, nil, &IntegrityError{Stage: "selector",
				Detail: fmt.Sprintf("selected %s with status %s", row.InstrumentID, row.Status)}
		}
		if !row.Justification.Complete() {
			return nil, nil, &IntegrityError{Stage: "selector",
				Detail: fmt.Sprintf("selected %s without a complete justification", row.InstrumentID)}
		}
	}

	return out, selected, nil
}

// size applies the tiered capital-allocation schedule keyed to quality
// score, capped per leg to bound leverage on cheap structures.
func (s *Selector) size(cand *types.StrategyCandidate, remaining float64) (int, float64) {
	if cand.CapitalEstimate <= 0 {
		return 0, 0
	}

	allocationPct := 25.0
	for _, tier := range s.Sizing.Tiers {
		if cand.QualityScore >= tier.MinScore {
			allocationPct = tier.AllocationPct
			break
		}
	}

	budget := math.Min(s.PerTradeCap*allocationPct/100, remaining)
	contracts := int(math.Floor(budget / cand.CapitalEstimate))
	if contracts > s.Sizing.MaxContractsPerLeg {
		contracts = s.Sizing.MaxContractsPerLeg
	}
	if contracts < 1 {
		return 0, 0
	}
	return contracts, float64(contracts) * cand.CapitalEstimate
}

// justify assembles the five mandatory sections from the annotations the
// earlier stages attached. Sections quote, never summarize away, the
// descriptive context recorded upstream.
func (s *Selector) justify(cand *types.StrategyCandidate, competitors []int, table []types.StrategyCandidate) *types.JustificationRecord {
	promoted := cand.Promoted()
	if promoted == nil {
		return &types.JustificationRecord{}
	}

	j := &types.JustificationRecord{}

	j.StrategyRationale = fmt.Sprintf(
		"%s structure chosen for %s: quality %.1f (%s), comparison %.1f, rank %d among %d candidates for the instrument; bias %s.",
		cand.Strategy, cand.InstrumentID, cand.QualityScore, cand.Class,
		cand.ComparisonScore, cand.Rank, len(competitors), cand.Bias)

	j.ContractRationale = fmt.Sprintf(
		"Representative leg %s: %d legs total, promoted by %s rule; delta %.2f, theta %.3f, vega %.3f; horizon %s.",
		formatting.OptionLabel(promoted.Underlying, promoted.Expiration, promoted.Strike, promoted.Right),
		len(cand.Contracts), cand.Strategy, promoted.Delta, promoted.Theta, promoted.Vega, cand.HorizonClass)

	if cand.LiquidityContext != "" {
		j.LiquidityRationale = fmt.Sprintf("Liquidity %s: %s", cand.LiquidityGrade, cand.LiquidityContext)
	}

	j.CapitalRationale = fmt.Sprintf(
		"Capital intensity %s: $%.0f per contract, %d contracts allocated $%.0f against a $%.0f per-trade cap (tiered by quality %.1f).",
		cand.Capital, cand.CapitalEstimate, cand.ContractsToOpen, cand.AllocatedUSD, s.PerTradeCap, cand.QualityScore)

	var losers []string
	for _, idx := range competitors {
		other := table[idx]
		if other.Strategy == cand.Strategy {
			continue
		}
		losers = append(losers, fmt.Sprintf("%s (quality %.1f, comparison %.1f, rank %d)",
			other.Strategy, other.QualityScore, other.ComparisonScore, other.Rank))
	}
	if len(losers) == 0 {
		j.CompetitorRationale = "No competing candidate reached READY_NOW for this instrument."
	} else {
		j.CompetitorRationale = "Not chosen: " + strings.Join(losers, "; ") + "."
	}

	return j
}
