package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fazecat/optionsmith/Internal/types"
)

func TestLoadProposals(t *testing.T) {
	payload := `{
		"instruments": [
			{"symbol": "AAPL", "price": 192.5, "vol_proxy": 24.1, "trend": "UP", "asset_type": "stock"},
			{"symbol": "MSFT", "price": 410.0, "vol_proxy": 19.8, "trend": "FLAT", "asset_type": "stock"}
		],
		"proposals": [
			{"instrument_id": "AAPL", "strategy_type": "directional", "bias": "BULLISH", "target_days": {"min": 20, "max": 40}},
			{"instrument_id": "MSFT", "strategy_type": "income", "bias": "NEUTRAL"},
			{"instrument_id": "GHOST", "strategy_type": "volatility", "bias": "NEUTRAL"}
		]
	}`
	path := filepath.Join(t.TempDir(), "proposals.json")
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	candidates, rows, err := LoadProposals(path)
	if err != nil {
		t.Fatalf("LoadProposals returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("instrument rows = %d, want 2", len(rows))
	}
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(candidates))
	}

	if candidates[0].TargetDays != (types.DayRange{Min: 20, Max: 40}) {
		t.Errorf("explicit target days = %+v, want 20-40", candidates[0].TargetDays)
	}
	if candidates[0].UnderlyingPrice != 192.5 {
		t.Errorf("price not joined from instrument rows: %.1f", candidates[0].UnderlyingPrice)
	}

	// omitted window falls back to the 30-60 day default
	if candidates[1].TargetDays != (types.DayRange{Min: 30, Max: 60}) {
		t.Errorf("default target days = %+v, want 30-60", candidates[1].TargetDays)
	}

	// an unknown instrument still becomes a candidate; the zero price will
	// surface as INCOMPLETE downstream instead of a silently dropped row
	ghost := candidates[2]
	if ghost.InstrumentID != "GHOST" {
		t.Fatalf("unknown-instrument proposal dropped")
	}
	if ghost.UnderlyingPrice != 0 {
		t.Errorf("unknown instrument price = %.1f, want 0", ghost.UnderlyingPrice)
	}
	if ghost.PromotedLeg != -1 {
		t.Errorf("PromotedLeg = %d, want -1 before exploration", ghost.PromotedLeg)
	}
}

func TestLoadProposalsMissingFile(t *testing.T) {
	if _, _, err := LoadProposals(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing proposals file")
	}
}

func TestLoadProposalsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := LoadProposals(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
