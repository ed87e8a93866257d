package pipeline

import (
	"fmt"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

// Scorer produces the 0-100 gradient quality score. Every deduction is a
// continuous, itemized penalty with a plain-language reason — there are no
// binary rejections here. Candidates with no contracts score 0 with a fixed
// rationale and no penalty list.
type Scorer struct {
	Cfg  config.ScoringConfig
	AsOf time.Time
}

func NewScorer(cfg *config.Config, asOf time.Time) *Scorer {
	return &Scorer{Cfg: cfg.Scoring, AsOf: asOf}
}

func (s *Scorer) Score(candidates []types.StrategyCandidate) ([]types.StrategyCandidate, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		s.scoreCandidate(&out[i])
	}

	if len(out) != len(candidates) {
		return nil, &IntegrityError{Stage: "scorer",
			Detail: fmt.Sprintf("row count drifted: %d in, %d out", len(candidates), len(out))}
	}
	return out, nil
}

func (s *Scorer) scoreCandidate(cand *types.StrategyCandidate) {
	if len(cand.Contracts) == 0 {
		cand.QualityScore = 0
		cand.Class = types.ScoreRejected
		cand.ScoreRationale = "no contracts discovered; quality not evaluated"
		return
	}

	score := 100.0
	penalties := []types.Penalty{}

	penalties = append(penalties, s.liquidityPenalties(cand)...)
	penalties = append(penalties, s.alignmentPenalties(cand)...)
	penalties = append(penalties, s.dtePenalties(cand)...)
	penalties = append(penalties, s.capitalPenalties(cand)...)

	for _, p := range penalties {
		score -= p.Points
	}
	score = utils.Clamp(score, 0, 100)

	cand.QualityScore = score
	cand.Class = types.ClassifyScore(score)
	cand.Penalties = penalties
	cand.ScoreRationale = fmt.Sprintf("base 100, %d penalties totaling %.1f points", len(penalties), 100-score)
}

// liquidityPenalties covers spread width and open-interest shortfall across
// all legs, scored on the weakest leg.
func (s *Scorer) liquidityPenalties(cand *types.StrategyCandidate) []types.Penalty {
	var penalties []types.Penalty

	worstSpread := 0.0
	worstOI := int64(-1)
	for _, leg := range cand.Contracts {
		if sp := leg.SpreadPercent(); sp > worstSpread {
			worstSpread = sp
		}
		if worstOI == -1 || leg.OpenInterest < worstOI {
			worstOI = leg.OpenInterest
		}
	}

	const spreadThreshold = 5.0
	if worstSpread > spreadThreshold {
		points := utils.Clamp((worstSpread-spreadThreshold)*s.Cfg.SpreadPenaltyPerPercent, 0, 25)
		penalties = append(penalties, types.Penalty{
			Axis:   "liquidity",
			Points: points,
			Reason: fmt.Sprintf("bid/ask spread %.1f%% exceeds %.0f%% threshold", worstSpread, spreadThreshold),
		})
	}

	const oiFloor = 200
	if worstOI < oiFloor {
		points := utils.Clamp((1-float64(worstOI)/oiFloor)*s.Cfg.OIPenaltyMax, 0, s.Cfg.OIPenaltyMax)
		penalties = append(penalties, types.Penalty{
			Axis:   "liquidity",
			Points: points,
			Reason: fmt.Sprintf("open interest %d below %d floor", worstOI, oiFloor),
		})
	}
	return penalties
}

// alignmentPenalties checks strategy-specific risk-sensitivity fit. When
// greeks are unavailable the axis is skipped and the absence recorded —
// graceful degradation, never a hard fail.
func (s *Scorer) alignmentPenalties(cand *types.StrategyCandidate) []types.Penalty {
	promoted := cand.Promoted()
	if promoted == nil || !promoted.HasGreeks {
		cand.MissingAxes = append(cand.MissingAxes, "risk_sensitivity")
		return nil
	}

	var penalties []types.Penalty
	absDelta := utils.Abs(promoted.Delta)

	switch cand.Strategy {
	case types.StrategyDirectional:
		if absDelta < s.Cfg.MinAbsDelta {
			points := utils.Clamp((s.Cfg.MinAbsDelta-absDelta)/s.Cfg.MinAbsDelta*25, 0, 25)
			penalties = append(penalties, types.Penalty{
				Axis:   "alignment",
				Points: points,
				Reason: fmt.Sprintf("directional exposure |delta|=%.2f below %.2f minimum", absDelta, s.Cfg.MinAbsDelta),
			})
		}

	case types.StrategyVolatility:
		if promoted.Vega < s.Cfg.MinVega {
			points := utils.Clamp((s.Cfg.MinVega-promoted.Vega)/s.Cfg.MinVega*20, 0, 20)
			penalties = append(penalties, types.Penalty{
				Axis:   "alignment",
				Points: points,
				Reason: fmt.Sprintf("volatility exposure vega=%.3f below %.3f minimum", promoted.Vega, s.Cfg.MinVega),
			})
		}
		if nd := utils.Abs(netDelta(cand)); nd > s.Cfg.MaxNeutralDelta {
			points := utils.Clamp((nd-s.Cfg.MaxNeutralDelta)/s.Cfg.MaxNeutralDelta*15, 0, 15)
			penalties = append(penalties, types.Penalty{
				Axis:   "alignment",
				Points: points,
				Reason: fmt.Sprintf("net delta %.2f not neutral enough (max %.2f)", nd, s.Cfg.MaxNeutralDelta),
			})
		}

	case types.StrategyIncome:
		// time decay must dominate volatility exposure
		vega := utils.Max(promoted.Vega, 0.001)
		ratio := utils.Abs(promoted.Theta) / vega
		if ratio < s.Cfg.ThetaVegaRatio {
			points := utils.Clamp((s.Cfg.ThetaVegaRatio-ratio)/s.Cfg.ThetaVegaRatio*20, 0, 20)
			penalties = append(penalties, types.Penalty{
				Axis:   "alignment",
				Points: points,
				Reason: fmt.Sprintf("theta/vega ratio %.2f below %.2f — decay does not dominate", ratio, s.Cfg.ThetaVegaRatio),
			})
		}

	case types.StrategyNeutral:
		if absDelta > s.Cfg.MaxNeutralDelta {
			points := utils.Clamp((absDelta-s.Cfg.MaxNeutralDelta)/s.Cfg.MaxNeutralDelta*20, 0, 20)
			penalties = append(penalties, types.Penalty{
				Axis:   "alignment",
				Points: points,
				Reason: fmt.Sprintf("|delta|=%.2f too directional for a neutral structure (max %.2f)", absDelta, s.Cfg.MaxNeutralDelta),
			})
		}
	}
	return penalties
}

func netDelta(cand *types.StrategyCandidate) float64 {
	total := 0.0
	for _, leg := range cand.Contracts {
		total += leg.Delta
	}
	return total
}

func (s *Scorer) dtePenalties(cand *types.StrategyCandidate) []types.Penalty {
	promoted := cand.Promoted()
	if promoted == nil {
		return nil
	}
	dte := promoted.DaysToExpiry(s.AsOf)

	if dte < s.Cfg.MinDTE {
		points := utils.Clamp(float64(s.Cfg.MinDTE-dte)*2, 0, 20)
		return []types.Penalty{{
			Axis:   "dte",
			Points: points,
			Reason: fmt.Sprintf("%d days to expiration below %d minimum", dte, s.Cfg.MinDTE),
		}}
	}
	if dte > s.Cfg.MaxDTE && !cand.IsLongDated {
		points := utils.Clamp(float64(dte-s.Cfg.MaxDTE)*s.Cfg.DTEPenaltyPerDay, 0, 15)
		return []types.Penalty{{
			Axis:   "dte",
			Points: points,
			Reason: fmt.Sprintf("%d days to expiration beyond %d maximum", dte, s.Cfg.MaxDTE),
		}}
	}
	return nil
}

func (s *Scorer) capitalPenalties(cand *types.StrategyCandidate) []types.Penalty {
	if cand.CapitalEstimate <= s.Cfg.CapitalCeilingPerTrade {
		return nil
	}
	excess := cand.CapitalEstimate - s.Cfg.CapitalCeilingPerTrade
	points := utils.Clamp(excess/1000*s.Cfg.CapitalPenaltyPer1000, 0, 25)
	return []types.Penalty{{
		Axis:   "capital",
		Points: points,
		Reason: fmt.Sprintf("capital at risk $%.0f exceeds $%.0f ceiling", cand.CapitalEstimate, s.Cfg.CapitalCeilingPerTrade),
	}}
}
