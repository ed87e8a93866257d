package pipeline

import (
	"testing"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

func TestRankDenseWithinInstrument(t *testing.T) {
	strong := readyCandidate("AAPL", types.StrategyDirectional, "BULLISH", 90)
	weak := readyCandidate("AAPL", types.StrategyIncome, "NEUTRAL", 55)
	weak.Contracts[0].Right = "P"
	weakTwin := weak // identical attributes, identical comparison score
	other := readyCandidate("MSFT", types.StrategyDirectional, "BULLISH", 70)

	out, err := NewRanker(config.Default()).Rank([]types.StrategyCandidate{strong, weak, weakTwin, other})
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("row count changed: got %d, want 4", len(out))
	}

	if out[0].Rank != 1 {
		t.Errorf("strongest AAPL candidate rank = %d, want 1", out[0].Rank)
	}
	if out[1].ComparisonScore != out[2].ComparisonScore {
		t.Fatalf("twin candidates scored %.2f vs %.2f, want identical",
			out[1].ComparisonScore, out[2].ComparisonScore)
	}
	if out[1].Rank != 2 || out[2].Rank != 2 {
		t.Errorf("tied candidates ranked %d and %d, want both 2 (dense)", out[1].Rank, out[2].Rank)
	}

	// ranks are per-instrument; MSFT's only candidate is its own rank 1
	if out[3].Rank != 1 {
		t.Errorf("sole MSFT candidate rank = %d, want 1", out[3].Rank)
	}

	if out[0].ComparisonScore <= out[1].ComparisonScore {
		t.Errorf("comparison scores not ordered by quality: %.2f vs %.2f",
			out[0].ComparisonScore, out[1].ComparisonScore)
	}
}

func TestRankContractLessGetsSentinel(t *testing.T) {
	empty := types.StrategyCandidate{
		InstrumentID: "AAPL",
		Strategy:     types.StrategyVolatility,
		Exploration:  types.ExplorationNoExpiries,
		PromotedLeg:  -1,
	}
	real := readyCandidate("AAPL", types.StrategyDirectional, "BULLISH", 80)

	out, err := NewRanker(config.Default()).Rank([]types.StrategyCandidate{empty, real})
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if out[0].Rank != types.SentinelRank {
		t.Errorf("contract-less rank = %d, want sentinel %d", out[0].Rank, types.SentinelRank)
	}
	if out[0].ComparisonScore != 0 {
		t.Errorf("contract-less comparison score = %.2f, want 0", out[0].ComparisonScore)
	}
	if out[1].Rank != 1 {
		t.Errorf("real candidate rank = %d, want 1 (sentinel rows do not compete)", out[1].Rank)
	}
}

func TestObjectiveAlignmentFavorsMatchingStrategy(t *testing.T) {
	incomeCfg := config.Default()
	incomeCfg.Global.Objective = "income"
	ranker := NewRanker(incomeCfg)

	if inc, dir := ranker.objectiveAlignment(types.StrategyIncome), ranker.objectiveAlignment(types.StrategyDirectional); inc <= dir {
		t.Errorf("income objective: income alignment %.0f <= directional %.0f", inc, dir)
	}

	unknownCfg := config.Default()
	unknownCfg.Global.Objective = "preservation"
	if got := NewRanker(unknownCfg).objectiveAlignment(types.StrategyIncome); got != 50 {
		t.Errorf("unknown objective alignment = %.0f, want neutral 50", got)
	}
}
