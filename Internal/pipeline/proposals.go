package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fazecat/optionsmith/Internal/types"
)

// ProposalFile is the handoff format from the upstream strategy-discovery
// collaborator: enriched instrument rows plus the (instrument, strategy)
// pairs it proposes for evaluation.
type ProposalFile struct {
	Instruments []types.InstrumentRow `json:"instruments"`
	Proposals   []Proposal            `json:"proposals"`
}

type Proposal struct {
	InstrumentID string             `json:"instrument_id"`
	Strategy     types.StrategyType `json:"strategy_type"`
	Bias         string             `json:"bias"`
	TargetDays   types.DayRange     `json:"target_days"`
}

// LoadProposals reads the upstream handoff and builds the run's candidate
// batch. A proposal naming an instrument missing from the enriched rows is
// still created — with a zero price it will surface as INCOMPLETE rather
// than disappear.
func LoadProposals(path string) ([]types.StrategyCandidate, []types.InstrumentRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read proposals file: %w", err)
	}

	var file ProposalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse proposals file: %w", err)
	}

	prices := make(map[string]float64, len(file.Instruments))
	for _, row := range file.Instruments {
		prices[row.Symbol] = row.Price
	}

	candidates := make([]types.StrategyCandidate, 0, len(file.Proposals))
	for _, prop := range file.Proposals {
		target := prop.TargetDays
		if target.Max == 0 {
			target = types.DayRange{Min: 30, Max: 60}
		}
		candidates = append(candidates, types.StrategyCandidate{
			InstrumentID:    prop.InstrumentID,
			Strategy:        prop.Strategy,
			Bias:            prop.Bias,
			TargetDays:      target,
			UnderlyingPrice: prices[prop.InstrumentID],
			PromotedLeg:     -1,
		})
	}

	return candidates, file.Instruments, nil
}
