package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/fazecat/optionsmith/Internal/chain"
	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

func newTestExplorer(provider chain.Provider) *Explorer {
	cfg := config.Default()
	return &Explorer{
		Chain:     provider,
		Liquidity: cfg.Liquidity,
		AsOf:      testAsOf,
		Workers:   2,
	}
}

func TestExploreAnnotatesEveryRow(t *testing.T) {
	expiry := testAsOf.AddDate(0, 0, 45)
	provider := &fakeChain{
		chains: map[string][]types.Contract{
			"AAPL": syntheticChain("AAPL", 100, expiry, 600, 4.9, 5.1),
		},
		errs: map[string]error{
			"MSFT": &chain.ProviderError{Kind: chain.ErrKindTransport, Instrument: "MSFT", Err: errors.New("503")},
		},
	}

	candidates := []types.StrategyCandidate{
		{InstrumentID: "AAPL", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
		{InstrumentID: "AAPL", Strategy: types.StrategyVolatility, Bias: "NEUTRAL",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
		{InstrumentID: "MSFT", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 400},
	}

	out, err := newTestExplorer(provider).Explore(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Explore returned error: %v", err)
	}
	if len(out) != len(candidates) {
		t.Fatalf("row count changed: %d in, %d out", len(candidates), len(out))
	}

	directional := out[0]
	if directional.Exploration != types.ExplorationSuccess {
		t.Errorf("directional exploration = %s, want %s", directional.Exploration, types.ExplorationSuccess)
	}
	if len(directional.Contracts) != 1 || directional.Contracts[0].Right != "C" {
		t.Errorf("directional bullish legs = %+v, want one call", directional.Contracts)
	}
	if directional.Contracts[0].Strike != 100 {
		t.Errorf("directional strike = %.0f, want the ATM 100", directional.Contracts[0].Strike)
	}
	// OI 600 against a band minimum of 300 with a 4% spread against 8%
	if directional.LiquidityGrade != types.LiquidityExcellent {
		t.Errorf("liquidity grade = %s, want %s", directional.LiquidityGrade, types.LiquidityExcellent)
	}
	if directional.LiquidityContext == "" {
		t.Error("liquidity context missing")
	}

	straddle := out[1]
	if len(straddle.Contracts) != 2 {
		t.Fatalf("volatility legs = %d, want an ATM straddle pair", len(straddle.Contracts))
	}
	rights := straddle.Contracts[0].Right + straddle.Contracts[1].Right
	if rights != "CP" && rights != "PC" {
		t.Errorf("straddle rights = %s, want one call and one put", rights)
	}

	// provider failure degrades to annotation, never a missing row
	failed := out[2]
	if failed.Exploration != types.ExplorationNoExpiries {
		t.Errorf("failed fetch exploration = %s, want %s", failed.Exploration, types.ExplorationNoExpiries)
	}
	if len(failed.Contracts) != 0 {
		t.Errorf("failed fetch carries %d contracts, want 0", len(failed.Contracts))
	}
	if failed.LiquidityContext == "" {
		t.Error("failed fetch should still explain itself in the liquidity context")
	}
}

func TestExploreFallbackOnlyForDirectional(t *testing.T) {
	farExpiry := testAsOf.AddDate(0, 0, 400)
	provider := &fakeChain{
		chains:   map[string][]types.Contract{},
		far:      map[string][]types.Contract{"TSLA": syntheticChain("TSLA", 100, farExpiry, 200, 9.8, 10.2)},
		farSplit: testAsOf.AddDate(0, 0, 60),
	}

	candidates := []types.StrategyCandidate{
		{InstrumentID: "TSLA", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
		{InstrumentID: "TSLA", Strategy: types.StrategyIncome, Bias: "NEUTRAL",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
	}

	out, err := newTestExplorer(provider).Explore(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Explore returned error: %v", err)
	}

	directional := out[0]
	if !directional.UsedFallback {
		t.Error("directional candidate did not use the long-horizon fallback")
	}
	if directional.Exploration != types.ExplorationSuccess {
		t.Errorf("fallback exploration = %s, want %s", directional.Exploration, types.ExplorationSuccess)
	}
	if !directional.IsLongDated || directional.HorizonClass != "long" {
		t.Errorf("400-day leg tagged %q/long-dated=%v, want long/true", directional.HorizonClass, directional.IsLongDated)
	}
	if directional.HorizonReason == "" {
		t.Error("fallback must record why the horizon moved")
	}
	// relaxed long-dated thresholds: OI 200 vs 150 minimum, 4% spread vs 10%
	if directional.LiquidityGrade != types.LiquidityGood {
		t.Errorf("long-dated liquidity grade = %s, want %s", directional.LiquidityGrade, types.LiquidityGood)
	}

	income := out[1]
	if income.UsedFallback {
		t.Error("income candidate fell back; only directional single-leg structures may")
	}
	if income.Exploration != types.ExplorationNoExpiries {
		t.Errorf("income exploration = %s, want %s", income.Exploration, types.ExplorationNoExpiries)
	}
}

func TestExploreThinOpenInterestGradesThin(t *testing.T) {
	expiry := testAsOf.AddDate(0, 0, 45)
	// a tight spread alone must not rescue near-zero open interest
	provider := &fakeChain{
		chains: map[string][]types.Contract{
			"AAPL": syntheticChain("AAPL", 100, expiry, 10, 4.9, 5.1),
			"MSFT": syntheticChain("MSFT", 100, expiry, 250, 4.75, 5.25),
		},
	}

	candidates := []types.StrategyCandidate{
		{InstrumentID: "AAPL", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
		{InstrumentID: "MSFT", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
	}

	out, err := newTestExplorer(provider).Explore(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Explore returned error: %v", err)
	}

	// OI 10 against a band minimum of 300; spread 4% against 8% is fine but
	// nobody is on the other side of the trade
	thin := out[0]
	if thin.LiquidityGrade != types.LiquidityThin {
		t.Errorf("grade = %s, want %s for OI 10", thin.LiquidityGrade, types.LiquidityThin)
	}
	if thin.Exploration != types.ExplorationLowLiquidity {
		t.Errorf("exploration = %s, want %s", thin.Exploration, types.ExplorationLowLiquidity)
	}

	// OI 250 (0.83x minimum) with a 10% spread (1.25x maximum) clears both
	// relaxed bars and stays Acceptable
	marginal := out[1]
	if marginal.LiquidityGrade != types.LiquidityAcceptable {
		t.Errorf("grade = %s, want %s for marginal-but-present depth", marginal.LiquidityGrade, types.LiquidityAcceptable)
	}
	if marginal.Exploration != types.ExplorationSuccess {
		t.Errorf("exploration = %s, want %s", marginal.Exploration, types.ExplorationSuccess)
	}
}

func TestExploreNoSuitableStrikes(t *testing.T) {
	expiry := testAsOf.AddDate(0, 0, 45)
	// chain exists but every strike sits far from the underlying price
	provider := &fakeChain{
		chains: map[string][]types.Contract{
			"NVDA": syntheticChain("NVDA", 300, expiry, 600, 4.9, 5.1),
		},
	}

	candidates := []types.StrategyCandidate{
		{InstrumentID: "NVDA", Strategy: types.StrategyDirectional, Bias: "BULLISH",
			TargetDays: types.DayRange{Min: 30, Max: 60}, UnderlyingPrice: 100},
	}

	out, err := newTestExplorer(provider).Explore(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Explore returned error: %v", err)
	}
	if out[0].Exploration != types.ExplorationNoStrikes {
		t.Errorf("exploration = %s, want %s", out[0].Exploration, types.ExplorationNoStrikes)
	}
	if out[0].LiquidityGrade != types.LiquidityThin {
		t.Errorf("grade = %s, want %s for an empty selection", out[0].LiquidityGrade, types.LiquidityThin)
	}
}
