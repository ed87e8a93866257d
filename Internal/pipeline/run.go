package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fazecat/optionsmith/Internal/chain"
	"github.com/fazecat/optionsmith/Internal/events"
	"github.com/fazecat/optionsmith/Internal/marketdata"
	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

// IntegrityError marks a violated pipeline contract: row-count drift, an
// illegal status transition, a selection without justification. These fail
// the run loudly — a crashed run is preferred to a wrong trade.
type IntegrityError struct {
	Stage  string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Stage, e.Detail)
}

// StageSnapshot is the forensic record of one stage's full output table.
// Row counts stay constant through the annotation stages and column counts
// never decrease.
type StageSnapshot struct {
	Stage   string                    `json:"stage"`
	Rows    int                       `json:"rows"`
	Columns int                       `json:"columns"`
	Table   []types.StrategyCandidate `json:"table"`
}

// attribute-group counts per stage; strictly non-decreasing by contract
var stageColumns = map[string]int{
	"input":      5,
	"explorer":   13,
	"annotator":  16,
	"scorer":     21,
	"ranker":     23,
	"acceptance": 25,
	"selector":   29,
}

type RunResult struct {
	AsOf      time.Time                 `json:"as_of"`
	Stress    marketdata.StressReading  `json:"stress"`
	Snapshots []StageSnapshot           `json:"snapshots"`
	Summary   *RunSummary               `json:"summary"`
	Selected  []types.StrategyCandidate `json:"selected"`
}

// Pipeline wires the six stages to their collaborators for one run.
type Pipeline struct {
	Cfg       *config.Config
	Chain     chain.Provider
	Vol       marketdata.VolContext
	StressSrc marketdata.StressSource
	Calendar  events.Calendar
	Prior     []PriorOutcome
	AsOf      time.Time
}

// Run executes the full pipeline over one batch of candidates. Stages 1-2
// may touch the network; everything after is a pure transformation over the
// complete table of the prior stage.
func (p *Pipeline) Run(ctx context.Context, candidates []types.StrategyCandidate) (*RunResult, error) {
	log.Printf("🚀 Pipeline run starting: %d candidates as of %s", len(candidates), p.AsOf.Format("2006-01-02"))

	// computed once, read-only for the rest of the run
	stress, err := p.StressSrc.StressReading(ctx)
	if err != nil {
		return nil, fmt.Errorf("stress level unavailable: %w", err)
	}

	result := &RunResult{AsOf: p.AsOf, Stress: stress}
	inputCount := len(candidates)

	record := func(stage string, table []types.StrategyCandidate) error {
		if len(table) != inputCount {
			return &IntegrityError{Stage: stage,
				Detail: fmt.Sprintf("row count %d differs from input %d", len(table), inputCount)}
		}
		cols := stageColumns[stage]
		if n := len(result.Snapshots); n > 0 && cols < result.Snapshots[n-1].Columns {
			return &IntegrityError{Stage: stage,
				Detail: fmt.Sprintf("column count decreased from %d to %d", result.Snapshots[n-1].Columns, cols)}
		}
		result.Snapshots = append(result.Snapshots, StageSnapshot{
			Stage: stage, Rows: len(table), Columns: cols, Table: cloneTable(table),
		})
		return nil
	}

	if err := record("input", candidates); err != nil {
		return nil, err
	}

	cache := chain.NewCache(p.Chain)
	explorer := NewExplorer(cache, p.Cfg, p.AsOf)
	table, err := explorer.Explore(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if err := record("explorer", table); err != nil {
		return nil, err
	}
	log.Printf("🔍 Exploration done: %d chain fetches for %d candidates", cache.Size(), len(table))

	table, err = Annotate(table)
	if err != nil {
		return nil, err
	}
	if err := record("annotator", table); err != nil {
		return nil, err
	}

	table, err = NewScorer(p.Cfg, p.AsOf).Score(table)
	if err != nil {
		return nil, err
	}
	if err := record("scorer", table); err != nil {
		return nil, err
	}

	table, err = NewRanker(p.Cfg).Rank(table)
	if err != nil {
		return nil, err
	}
	if err := record("ranker", table); err != nil {
		return nil, err
	}

	machine := &Machine{
		Cfg:      p.Cfg.Gates,
		Vol:      p.Vol,
		Calendar: p.Calendar,
		Stress:   stress,
		Prior:    p.Prior,
		AsOf:     p.AsOf,
	}
	table, summary, err := machine.Apply(ctx, table)
	if err != nil {
		return nil, err
	}
	result.Summary = summary
	if err := record("acceptance", table); err != nil {
		return nil, err
	}

	table, selected, err := NewSelector(p.Cfg).Select(table)
	if err != nil {
		return nil, err
	}
	result.Selected = selected
	if err := record("selector", table); err != nil {
		return nil, err
	}

	log.Printf("✅ Pipeline run complete: %d selected of %d candidates", len(selected), inputCount)
	return result, nil
}

// cloneTable deep-copies the slices candidates carry so later stages cannot
// mutate an earlier snapshot.
func cloneTable(table []types.StrategyCandidate) []types.StrategyCandidate {
	out := make([]types.StrategyCandidate, len(table))
	copy(out, table)
	for i := range out {
		if out[i].Contracts != nil {
			contracts := make([]types.Contract, len(out[i].Contracts))
			copy(contracts, out[i].Contracts)
			out[i].Contracts = contracts
		}
		if out[i].Penalties != nil {
			penalties := make([]types.Penalty, len(out[i].Penalties))
			copy(penalties, out[i].Penalties)
			out[i].Penalties = penalties
		}
		if out[i].StatusReasons != nil {
			reasons := make([]string, len(out[i].StatusReasons))
			copy(reasons, out[i].StatusReasons)
			out[i].StatusReasons = reasons
		}
		if out[i].MissingAxes != nil {
			axes := make([]string, len(out[i].MissingAxes))
			copy(axes, out[i].MissingAxes)
			out[i].MissingAxes = axes
		}
		if out[i].Justification != nil {
			j := *out[i].Justification
			out[i].Justification = &j
		}
	}
	return out
}
