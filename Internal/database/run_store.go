package datafeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/fazecat/optionsmith/Internal/pipeline"
	"github.com/fazecat/optionsmith/Internal/types"
)

// SaveRun persists the run header, every stage snapshot, the per-candidate
// outcomes and the final selections in one transaction. Returns the run id.
func SaveRun(ctx context.Context, result *pipeline.RunResult) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal run summary: %w", err)
	}

	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO pipeline_runs (as_of, stress_level, stress_proxy, candidates, ready_now, matured, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		result.AsOf, string(result.Stress.Level), result.Stress.MedianProxy,
		result.Summary.Candidates, result.Summary.CountsByStatus[types.StatusReadyNow],
		result.Summary.Matured, summaryJSON,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	for _, snap := range result.Snapshots {
		payload, err := json.Marshal(snap.Table)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s snapshot: %w", snap.Stage, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_snapshots (run_id, stage, row_count, column_count, payload)
			VALUES ($1, $2, $3, $4, $5)`,
			runID, snap.Stage, snap.Rows, snap.Columns, payload)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s snapshot: %w", snap.Stage, err)
		}
	}

	// the acceptance table is the authoritative per-candidate outcome
	if final := finalSnapshot(result); final != nil {
		for _, cand := range final.Table {
			reasons, _ := json.Marshal(cand.StatusReasons)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO candidate_outcomes (run_id, instrument, strategy, status, quality_score, score_class, reasons)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				runID, cand.InstrumentID, string(cand.Strategy), string(cand.Status),
				cand.QualityScore, string(cand.Class), reasons)
			if err != nil {
				return 0, fmt.Errorf("failed to insert outcome for %s: %w", cand.InstrumentID, err)
			}
		}
	}

	for _, sel := range result.Selected {
		promoted := sel.Promoted()
		symbol := ""
		if promoted != nil {
			symbol = promoted.Symbol
		}
		allocated := decimal.NewFromFloat(sel.AllocatedUSD)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO selections (run_id, instrument, strategy, contract_symbol, contracts_to_open,
				allocated_usd, strategy_rationale, contract_rationale, liquidity_rationale,
				capital_rationale, competitor_rationale)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			runID, sel.InstrumentID, string(sel.Strategy), symbol, sel.ContractsToOpen,
			allocated.String(),
			sel.Justification.StrategyRationale, sel.Justification.ContractRationale,
			sel.Justification.LiquidityRationale, sel.Justification.CapitalRationale,
			sel.Justification.CompetitorRationale)
		if err != nil {
			return 0, fmt.Errorf("failed to insert selection for %s: %w", sel.InstrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	log.Printf("✅ Run %d persisted: %d snapshots, %d selections", runID, len(result.Snapshots), len(result.Selected))
	return runID, nil
}

func finalSnapshot(result *pipeline.RunResult) *pipeline.StageSnapshot {
	for i := len(result.Snapshots) - 1; i >= 0; i-- {
		if result.Snapshots[i].Stage == "acceptance" {
			return &result.Snapshots[i]
		}
	}
	return nil
}

// LoadPriorOutcomes fetches the most recent run's per-candidate outcomes
// for the maturation pass.
func LoadPriorOutcomes(ctx context.Context) ([]pipeline.PriorOutcome, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var runID int64
	err := DB.QueryRowContext(ctx, `SELECT id FROM pipeline_runs ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find prior run: %w", err)
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT instrument, strategy, status, reasons
		FROM candidate_outcomes WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []pipeline.PriorOutcome
	for rows.Next() {
		var outcome pipeline.PriorOutcome
		var reasonsJSON []byte
		if err := rows.Scan(&outcome.Instrument, &outcome.Strategy, &outcome.Status, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan prior outcome: %w", err)
		}
		if len(reasonsJSON) > 0 {
			_ = json.Unmarshal(reasonsJSON, &outcome.Reasons)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

type RunRow struct {
	ID          int64   `json:"id"`
	AsOf        string  `json:"as_of"`
	StressLevel string  `json:"stress_level"`
	StressProxy float64 `json:"stress_proxy"`
	Candidates  int     `json:"candidates"`
	ReadyNow    int     `json:"ready_now"`
	Matured     int     `json:"matured"`
}

func ListRuns(ctx context.Context, limit int32) ([]RunRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT id, as_of::text, stress_level, stress_proxy, candidates, ready_now, matured
		FROM pipeline_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.AsOf, &r.StressLevel, &r.StressProxy, &r.Candidates, &r.ReadyNow, &r.Matured); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type SelectionRow struct {
	Instrument          string `json:"instrument"`
	Strategy            string `json:"strategy"`
	ContractSymbol      string `json:"contract_symbol"`
	ContractsToOpen     int    `json:"contracts_to_open"`
	AllocatedUSD        string `json:"allocated_usd"`
	StrategyRationale   string `json:"strategy_rationale"`
	ContractRationale   string `json:"contract_rationale"`
	LiquidityRationale  string `json:"liquidity_rationale"`
	CapitalRationale    string `json:"capital_rationale"`
	CompetitorRationale string `json:"competitor_rationale"`
}

func GetSelections(ctx context.Context, runID int64) ([]SelectionRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT instrument, strategy, contract_symbol, contracts_to_open, allocated_usd,
			strategy_rationale, contract_rationale, liquidity_rationale,
			capital_rationale, competitor_rationale
		FROM selections WHERE run_id = $1 ORDER BY instrument`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch selections: %w", err)
	}
	defer rows.Close()

	var out []SelectionRow
	for rows.Next() {
		var s SelectionRow
		if err := rows.Scan(&s.Instrument, &s.Strategy, &s.ContractSymbol, &s.ContractsToOpen,
			&s.AllocatedUSD, &s.StrategyRationale, &s.ContractRationale, &s.LiquidityRationale,
			&s.CapitalRationale, &s.CompetitorRationale); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSnapshot returns one stage's persisted table for a run.
func GetSnapshot(ctx context.Context, runID int64, stage string) (json.RawMessage, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var payload []byte
	err := DB.QueryRowContext(ctx, `
		SELECT payload FROM stage_snapshots WHERE run_id = $1 AND stage = $2`, runID, stage).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	return payload, nil
}
