package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fazecat/optionsmith/Internal/events"
	"github.com/fazecat/optionsmith/Internal/marketdata"
	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

// PriorOutcome is a previous run's result for one (instrument, strategy)
// pair, used only by the maturation pass at run start.
type PriorOutcome struct {
	Instrument string                 `json:"instrument"`
	Strategy   types.StrategyType     `json:"strategy"`
	Status     types.AcceptanceStatus `json:"status"`
	Reasons    []string               `json:"reasons"`
}

// RunSummary is emitted after every acceptance pass, whether or not any
// candidate reached READY_NOW.
type RunSummary struct {
	AsOf           time.Time                      `json:"as_of"`
	Candidates     int                            `json:"candidates"`
	CountsByStatus map[types.AcceptanceStatus]int `json:"counts_by_status"`
	GateTriggers   map[string]int                 `json:"gate_triggers"`
	Stress         marketdata.StressReading       `json:"stress"`
	Matured        int                            `json:"matured"`
}

// Machine applies the ordered, downgrade-only acceptance gates. The stress
// reading is computed once at run start and passed in read-only; the machine
// never writes to any historical entry field.
type Machine struct {
	Cfg      config.GateConfig
	Vol      marketdata.VolContext
	Calendar events.Calendar
	Stress   marketdata.StressReading
	Prior    []PriorOutcome
	AsOf     time.Time
}

const (
	gateCompleteness = "evaluation_completeness"
	gateHistory      = "historical_data_availability"
	gateStress       = "market_stress"
	gateEvent        = "event_proximity"
)

// Apply runs baseline evaluation then gates 1-4 in fixed order. Only
// downgrades happen here; the single sanctioned upward path is the
// maturation note applied before any gate runs.
func (m *Machine) Apply(ctx context.Context, candidates []types.StrategyCandidate) ([]types.StrategyCandidate, *RunSummary, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	summary := &RunSummary{
		AsOf:           m.AsOf,
		Candidates:     len(out),
		CountsByStatus: make(map[types.AcceptanceStatus]int),
		GateTriggers:   make(map[string]int),
		Stress:         m.Stress,
	}

	matured := m.maturedSet()

	// baseline evaluation decides the starting state
	for i := range out {
		m.baseline(&out[i], matured, summary)
	}

	// history lookups feed gate 2; resolved once per candidate here so the
	// gate itself stays a pure ordered pass
	historyGap := make([]string, len(out))
	for i := range out {
		if out[i].Status != types.StatusReadyNow {
			continue
		}
		if gap := m.historyGap(ctx, out[i].InstrumentID); gap != "" {
			historyGap[i] = gap
		}
	}

	// Gate 1: evaluation completeness
	for i := range out {
		if out[i].Status != types.StatusReadyNow {
			continue
		}
		if out[i].QualityScore < m.Cfg.MinQualityScore {
			reason := fmt.Sprintf("evaluation completeness: quality score %.1f below %.0f",
				out[i].QualityScore, m.Cfg.MinQualityScore)
			if err := out[i].Downgrade(types.StatusStructurallyReady, reason); err != nil {
				return nil, nil, &IntegrityError{Stage: "acceptance", Detail: err.Error()}
			}
			summary.GateTriggers[gateCompleteness]++
		}
	}

	// Gate 2: historical data availability. Compounds with gate 1 — a
	// candidate already moved to STRUCTURALLY_READY gets the second reason
	// recorded alongside the first.
	for i := range out {
		gap := historyGap[i]
		if gap == "" {
			continue
		}
		switch out[i].Status {
		case types.StatusReadyNow:
			if err := out[i].Downgrade(types.StatusStructurallyReady, gap); err != nil {
				return nil, nil, &IntegrityError{Stage: "acceptance", Detail: err.Error()}
			}
			summary.GateTriggers[gateHistory]++
		case types.StatusStructurallyReady:
			out[i].StatusReasons = append(out[i].StatusReasons, gap)
			summary.GateTriggers[gateHistory]++
		}
	}

	// Gate 3: market-wide circuit breaker. All-or-nothing: under RED stress
	// every remaining READY_NOW candidate is halted, with no partial-size or
	// subset exception.
	if m.Stress.Level == marketdata.StressRed {
		log.Printf("🛑 Market stress RED (median proxy %.1f >= %.1f) — halting all READY_NOW candidates",
			m.Stress.MedianProxy, m.Cfg.StressRedThreshold)
		for i := range out {
			if out[i].Status != types.StatusReadyNow {
				continue
			}
			reason := fmt.Sprintf("market stress halt: median volatility proxy %.1f at or above red threshold %.1f",
				m.Stress.MedianProxy, m.Cfg.StressRedThreshold)
			if err := out[i].Downgrade(types.StatusHaltedStress, reason); err != nil {
				return nil, nil, &IntegrityError{Stage: "acceptance", Detail: err.Error()}
			}
			summary.GateTriggers[gateStress]++
		}
	}

	// Gate 4: event proximity. An unknown event date never blocks — unknown
	// is treated as lower-risk than known-and-close.
	for i := range out {
		if out[i].Status != types.StatusReadyNow {
			continue
		}
		days, known, err := m.Calendar.DaysToNextEvent(ctx, out[i].InstrumentID)
		if err != nil || !known {
			continue
		}
		if m.eventTooClose(days, &out[i]) {
			reason := fmt.Sprintf("earnings event in %d days, inside %d-day window", days, m.Cfg.EventWindowDays)
			if err := out[i].Downgrade(types.StatusWaitEarnings, reason); err != nil {
				return nil, nil, &IntegrityError{Stage: "acceptance", Detail: err.Error()}
			}
			summary.GateTriggers[gateEvent]++
		}
	}

	for i := range out {
		summary.CountsByStatus[out[i].Status]++
	}
	log.Printf("📋 Acceptance summary: %d candidates, %d READY_NOW, stress %s",
		summary.Candidates, summary.CountsByStatus[types.StatusReadyNow], summary.Stress.Level)

	if len(out) != len(candidates) {
		return nil, nil, &IntegrityError{Stage: "acceptance",
			Detail: fmt.Sprintf("row count drifted: %d in, %d out", len(candidates), len(out))}
	}
	return out, summary, nil
}

// baseline sets the initial state: READY_NOW for a passing evaluation,
// INCOMPLETE for a data gap, AVOID for a rule violation.
func (m *Machine) baseline(cand *types.StrategyCandidate, matured map[string]bool, summary *RunSummary) {
	key := cand.InstrumentID + "|" + string(cand.Strategy)

	switch {
	case len(cand.Contracts) == 0:
		cand.Status = types.StatusIncomplete
		cand.StatusReasons = append(cand.StatusReasons,
			fmt.Sprintf("no contracts discovered (%s)", cand.Exploration))

	case cand.Promoted() == nil:
		cand.Status = types.StatusIncomplete
		cand.StatusReasons = append(cand.StatusReasons, "no representative leg promoted")

	case cand.Strategy == types.StrategyDirectional && cand.Bias != "BULLISH" && cand.Bias != "BEARISH":
		cand.Status = types.StatusAvoid
		cand.StatusReasons = append(cand.StatusReasons,
			fmt.Sprintf("incoherent bias %q for a directional structure", cand.Bias))

	case cand.QualityScore < m.Cfg.MinBaselineScore:
		cand.Status = types.StatusAvoid
		cand.StatusReasons = append(cand.StatusReasons,
			fmt.Sprintf("baseline quality %.1f below %.0f minimum", cand.QualityScore, m.Cfg.MinBaselineScore))

	default:
		cand.Status = types.StatusReadyNow
		if matured[key] {
			// the sole upward path: new data arrived between runs
			cand.StatusReasons = append(cand.StatusReasons,
				"matured: history unavailable last run is now available")
			summary.Matured++
		}
	}
}

// maturedSet lists pairs that were STRUCTURALLY_READY last run for lack of
// history; if they qualify this run the promotion is recorded. Runs only
// here, at run start — never mid-run.
func (m *Machine) maturedSet() map[string]bool {
	matured := make(map[string]bool)
	for _, prior := range m.Prior {
		if prior.Status != types.StatusStructurallyReady {
			continue
		}
		for _, reason := range prior.Reasons {
			if strings.HasPrefix(reason, "insufficient history") {
				matured[prior.Instrument+"|"+string(prior.Strategy)] = true
				break
			}
		}
	}
	return matured
}

func (m *Machine) historyGap(ctx context.Context, instrument string) string {
	if m.Vol == nil {
		return fmt.Sprintf("insufficient history: volatility context unavailable, %d observations required", m.Cfg.MinHistoryObs)
	}
	_, observations, err := m.Vol.PercentileRank(ctx, instrument)
	if err != nil {
		return fmt.Sprintf("insufficient history: lookup failed (%v), %d observations required", err, m.Cfg.MinHistoryObs)
	}
	if observations < m.Cfg.MinHistoryObs {
		return fmt.Sprintf("insufficient history: %d observations, %d required", observations, m.Cfg.MinHistoryObs)
	}
	return ""
}

// eventTooClose is true when a known event lands inside the window around
// either the entry date or the promoted leg's expiration.
func (m *Machine) eventTooClose(daysToEvent int, cand *types.StrategyCandidate) bool {
	if daysToEvent <= m.Cfg.EventWindowDays {
		return true
	}
	if promoted := cand.Promoted(); promoted != nil {
		dte := promoted.DaysToExpiry(m.AsOf)
		diff := daysToEvent - dte
		if diff < 0 {
			diff = -diff
		}
		return diff <= m.Cfg.EventWindowDays
	}
	return false
}
