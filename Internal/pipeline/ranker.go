package pipeline

import (
	"fmt"
	"sort"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

// Ranker computes the composite comparison score and a dense rank among
// candidates sharing an instrument. Pure annotation pass: however poorly a
// candidate compares, it stays in the table.
type Ranker struct {
	Weights   config.RankingWeights
	Objective string
}

func NewRanker(cfg *config.Config) *Ranker {
	return &Ranker{Weights: cfg.Ranking, Objective: cfg.Global.Objective}
}

func (r *Ranker) Rank(candidates []types.StrategyCandidate) ([]types.StrategyCandidate, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	byInstrument := make(map[string][]int)
	for i := range out {
		if len(out[i].Contracts) == 0 {
			// fixed sentinel: zero comparison weight, never competitive
			out[i].ComparisonScore = 0
			out[i].Rank = types.SentinelRank
			continue
		}
		out[i].ComparisonScore = r.comparisonScore(&out[i])
		byInstrument[out[i].InstrumentID] = append(byInstrument[out[i].InstrumentID], i)
	}

	for _, indices := range byInstrument {
		sort.Slice(indices, func(a, b int) bool {
			return out[indices[a]].ComparisonScore > out[indices[b]].ComparisonScore
		})
		rank := 0
		lastScore := -1.0
		for _, idx := range indices {
			if out[idx].ComparisonScore != lastScore {
				rank++
				lastScore = out[idx].ComparisonScore
			}
			out[idx].Rank = rank
		}
	}

	if len(out) != len(candidates) {
		return nil, &IntegrityError{Stage: "ranker",
			Detail: fmt.Sprintf("row count drifted: %d in, %d out", len(candidates), len(out))}
	}
	return out, nil
}

func (r *Ranker) comparisonScore(cand *types.StrategyCandidate) float64 {
	quality := cand.QualityScore
	risk := riskProfileScore(cand)
	cost := costEfficiencyScore(cand)
	liquidity := liquidityScore(cand.LiquidityGrade)
	objective := r.objectiveAlignment(cand.Strategy)

	total := quality*r.Weights.Quality +
		risk*r.Weights.Risk +
		cost*r.Weights.Cost +
		liquidity*r.Weights.Liquidity +
		objective*r.Weights.Objective
	return utils.Clamp(total, 0, 100)
}

// riskProfileScore grades how well the promoted leg's greeks fit the
// structure's intent. Without greeks it sits at a neutral 50.
func riskProfileScore(cand *types.StrategyCandidate) float64 {
	promoted := cand.Promoted()
	if promoted == nil || !promoted.HasGreeks {
		return 50
	}
	absDelta := utils.Abs(promoted.Delta)

	switch cand.Strategy {
	case types.StrategyIncome, types.StrategyNeutral:
		// probability-of-profit style: further from the money is safer
		return utils.Clamp((1-absDelta)*100, 0, 100)
	case types.StrategyDirectional:
		return utils.Clamp(absDelta/0.6*100, 0, 100)
	case types.StrategyVolatility:
		return utils.Clamp(promoted.Vega/0.2*100, 0, 100)
	}
	return 50
}

func costEfficiencyScore(cand *types.StrategyCandidate) float64 {
	if cand.CapitalEstimate <= 0 {
		return 0
	}
	// quality points per $1k committed, normalized so ~10 pts/$1k = 100
	perThousand := cand.QualityScore / (cand.CapitalEstimate / 1000)
	return utils.Clamp(perThousand*10, 0, 100)
}

func liquidityScore(grade types.LiquidityGrade) float64 {
	switch grade {
	case types.LiquidityExcellent:
		return 100
	case types.LiquidityGood:
		return 80
	case types.LiquidityAcceptable:
		return 60
	default:
		return 30
	}
}

// objectiveAlignment scores how well a strategy type serves the declared
// user objective.
func (r *Ranker) objectiveAlignment(strategy types.StrategyType) float64 {
	alignment := map[string]map[types.StrategyType]float64{
		"income": {
			types.StrategyIncome:      100,
			types.StrategyNeutral:     75,
			types.StrategyDirectional: 40,
			types.StrategyVolatility:  30,
		},
		"growth": {
			types.StrategyDirectional: 100,
			types.StrategyVolatility:  60,
			types.StrategyIncome:      50,
			types.StrategyNeutral:     40,
		},
		"volatility": {
			types.StrategyVolatility:  100,
			types.StrategyNeutral:     70,
			types.StrategyDirectional: 40,
			types.StrategyIncome:      30,
		},
	}

	if byStrategy, ok := alignment[r.Objective]; ok {
		if score, ok := byStrategy[strategy]; ok {
			return score
		}
	}
	return 50
}
