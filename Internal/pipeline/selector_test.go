package pipeline

import (
	"strings"
	"testing"

	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

func newTestSelector() *Selector {
	return NewSelector(config.Default())
}

// acceptedCandidate is a readyCandidate as the acceptance machine would
// leave it: READY_NOW with comparator annotations in place.
func acceptedCandidate(sym string, strategy types.StrategyType, quality, comparison float64, rank int) types.StrategyCandidate {
	cand := readyCandidate(sym, strategy, "BULLISH", quality)
	cand.ComparisonScore = comparison
	cand.Rank = rank
	cand.Status = types.StatusReadyNow
	return cand
}

func TestSelectOnePerInstrumentWithFullJustification(t *testing.T) {
	best := acceptedCandidate("AAPL", types.StrategyDirectional, 85, 82, 1)
	runnerUp := acceptedCandidate("AAPL", types.StrategyIncome, 70, 65, 2)
	avoided := acceptedCandidate("MSFT", types.StrategyVolatility, 85, 80, 1)
	avoided.Status = types.StatusAvoid
	avoided.StatusReasons = []string{"baseline quality 30.0 below 50 minimum"}

	table, selected, err := newTestSelector().Select([]types.StrategyCandidate{best, runnerUp, avoided})
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(table) != 3 {
		t.Fatalf("full table shrank: %d rows, want 3", len(table))
	}
	if len(selected) != 1 {
		t.Fatalf("selected %d rows, want 1", len(selected))
	}

	pick := selected[0]
	if pick.InstrumentID != "AAPL" || pick.Strategy != types.StrategyDirectional {
		t.Errorf("picked %s/%s, want AAPL/directional", pick.InstrumentID, pick.Strategy)
	}
	if !pick.Selected {
		t.Error("selected row not flagged Selected")
	}

	j := pick.Justification
	if !j.Complete() {
		t.Fatalf("justification incomplete: %+v", j)
	}
	if j.CompetitorRationale == "" || j.StrategyRationale == "" {
		t.Error("justification sections empty")
	}
	// the losing income structure must be named, not summarized away
	if !strings.Contains(j.CompetitorRationale, "income") {
		t.Errorf("competitor section does not name the runner-up: %q", j.CompetitorRationale)
	}

	// quality 85 lands in the 75% tier of the $5000 per-trade cap: $3750
	// budget over a $500 structure buys 7 contracts
	if pick.ContractsToOpen != 7 {
		t.Errorf("ContractsToOpen = %d, want 7", pick.ContractsToOpen)
	}
	if pick.AllocatedUSD != 3500 {
		t.Errorf("AllocatedUSD = %.0f, want 3500", pick.AllocatedUSD)
	}
}

func TestSelectExcludesUnjustifiable(t *testing.T) {
	cand := acceptedCandidate("AAPL", types.StrategyDirectional, 85, 82, 1)
	cand.LiquidityContext = "" // upstream never recorded liquidity evidence

	table, selected, err := newTestSelector().Select([]types.StrategyCandidate{cand})
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(selected) != 0 {
		t.Fatalf("selected %d rows without liquidity evidence, want 0", len(selected))
	}
	if table[0].Selected {
		t.Error("unjustifiable candidate flagged Selected in the table")
	}
	if table[0].AllocatedUSD != 0 || table[0].ContractsToOpen != 0 {
		t.Errorf("excluded candidate kept an allocation: %d contracts, $%.0f",
			table[0].ContractsToOpen, table[0].AllocatedUSD)
	}
}

func TestSelectRespectsMaxPositions(t *testing.T) {
	selector := newTestSelector()
	selector.MaxPositions = 2

	candidates := []types.StrategyCandidate{
		acceptedCandidate("AAPL", types.StrategyDirectional, 85, 90, 1),
		acceptedCandidate("MSFT", types.StrategyDirectional, 85, 80, 1),
		acceptedCandidate("NVDA", types.StrategyDirectional, 85, 70, 1),
	}

	_, selected, err := selector.Select(candidates)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("selected %d positions, want 2", len(selected))
	}
	// strongest comparison scores win the slots
	if selected[0].InstrumentID != "AAPL" || selected[1].InstrumentID != "MSFT" {
		t.Errorf("selected %s then %s, want AAPL then MSFT",
			selected[0].InstrumentID, selected[1].InstrumentID)
	}
}

func TestSelectSkipsWeakComparisonScores(t *testing.T) {
	cand := acceptedCandidate("AAPL", types.StrategyDirectional, 85, 30, 1) // below the 40 floor

	_, selected, err := newTestSelector().Select([]types.StrategyCandidate{cand})
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(selected) != 0 {
		t.Errorf("selected a candidate with comparison score 30, want none")
	}
}

func TestSelectHonorsCapitalCeiling(t *testing.T) {
	selector := newTestSelector()
	selector.CapitalCeiling = 4000 // only room for one $3500 allocation

	candidates := []types.StrategyCandidate{
		acceptedCandidate("AAPL", types.StrategyDirectional, 85, 90, 1),
		acceptedCandidate("MSFT", types.StrategyDirectional, 85, 80, 1),
	}

	_, selected, err := selector.Select(candidates)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}

	total := 0.0
	for _, row := range selected {
		total += row.AllocatedUSD
	}
	if total > selector.CapitalCeiling {
		t.Errorf("allocated $%.0f against a $%.0f ceiling", total, selector.CapitalCeiling)
	}
	if len(selected) != 2 {
		// the second winner still fits a smaller allocation out of the $500
		// remaining: one contract
		t.Fatalf("selected %d rows, want 2 (second sized down)", len(selected))
	}
	if selected[1].ContractsToOpen != 1 {
		t.Errorf("second selection ContractsToOpen = %d, want 1", selected[1].ContractsToOpen)
	}
}

func TestSelectTierAllocations(t *testing.T) {
	tests := []struct {
		quality       float64
		wantContracts int
	}{
		{95, 10}, // 100% tier: $5000 / $500 = 10, at the per-leg cap
		{85, 7},  // 75% tier: $3750 / $500
		{72, 5},  // 50% tier: $2500 / $500
		{55, 2},  // base tier: $1250 / $500
	}

	for _, tt := range tests {
		cand := acceptedCandidate("AAPL", types.StrategyDirectional, tt.quality, 80, 1)
		_, selected, err := newTestSelector().Select([]types.StrategyCandidate{cand})
		if err != nil {
			t.Fatalf("quality %.0f: Select returned error: %v", tt.quality, err)
		}
		if len(selected) != 1 {
			t.Fatalf("quality %.0f: selected %d rows, want 1", tt.quality, len(selected))
		}
		if selected[0].ContractsToOpen != tt.wantContracts {
			t.Errorf("quality %.0f: ContractsToOpen = %d, want %d",
				tt.quality, selected[0].ContractsToOpen, tt.wantContracts)
		}
	}
}
