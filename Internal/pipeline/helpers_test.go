package pipeline

import (
	"context"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
)

// fixed run date for every pipeline test
var testAsOf = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeVol struct {
	rank float64
	obs  int
	err  error
}

func (v *fakeVol) PercentileRank(ctx context.Context, instrument string) (float64, int, error) {
	return v.rank, v.obs, v.err
}

// fakeChain serves canned chains per instrument and routes fetches whose
// window starts past the target range to the far map, mirroring the
// long-horizon fallback retry.
type fakeChain struct {
	chains   map[string][]types.Contract
	far      map[string][]types.Contract
	errs     map[string]error
	farSplit time.Time
}

func (f *fakeChain) FetchChain(ctx context.Context, instrument string, from, to time.Time) ([]types.Contract, error) {
	if err, ok := f.errs[instrument]; ok {
		return nil, err
	}
	if !f.farSplit.IsZero() && !from.Before(f.farSplit) {
		return f.far[instrument], nil
	}
	return f.chains[instrument], nil
}

// syntheticChain builds both rights at strikes around the underlying price
// for a single expiration, with uniform OI and spread.
func syntheticChain(underlying string, price float64, expiry time.Time, oi int64, bid, ask float64) []types.Contract {
	var out []types.Contract
	for _, offset := range []float64{-0.10, -0.05, 0, 0.05, 0.10} {
		strike := price * (1 + offset)
		for _, right := range []string{"C", "P"} {
			delta := 0.5 - offset*4
			if right == "P" {
				delta = delta - 1
			}
			out = append(out, types.Contract{
				Symbol:       underlying,
				Underlying:   underlying,
				Right:        right,
				Strike:       strike,
				Expiration:   expiry,
				Bid:          bid,
				Ask:          ask,
				OpenInterest: oi,
				Volume:       oi / 2,
				Delta:        delta,
				Theta:        -0.05,
				Vega:         0.12,
				ImpliedVol:   0.30,
				HasGreeks:    true,
			})
		}
	}
	return out
}

// readyCandidate builds a fully annotated candidate the way the scorer and
// ranker would leave it, positioned to start READY_NOW at baseline.
func readyCandidate(sym string, strategy types.StrategyType, bias string, quality float64) types.StrategyCandidate {
	leg := types.Contract{
		Symbol:       sym,
		Underlying:   sym,
		Right:        "C",
		Strike:       100,
		Expiration:   testAsOf.AddDate(0, 0, 45),
		Bid:          4.9,
		Ask:          5.1,
		OpenInterest: 600,
		Delta:        0.52,
		Theta:        -0.05,
		Vega:         0.12,
		HasGreeks:    true,
	}
	return types.StrategyCandidate{
		InstrumentID:     sym,
		Strategy:         strategy,
		Bias:             bias,
		TargetDays:       types.DayRange{Min: 30, Max: 60},
		UnderlyingPrice:  100,
		Contracts:        []types.Contract{leg},
		Exploration:      types.ExplorationSuccess,
		LiquidityGrade:   types.LiquidityGood,
		LiquidityContext: "worst-leg OI 600 (band min 300), spread 4.0% (band max 8.0%)",
		HorizonClass:     "short",
		CapitalEstimate:  500,
		Capital:          types.CapitalLight,
		PromotedLeg:      0,
		QualityScore:     quality,
		Class:            types.ClassifyScore(quality),
		ComparisonScore:  quality * 0.9,
		Rank:             1,
	}
}
