package types

import (
	"math"
	"time"
)

type StrategyType string

const (
	StrategyDirectional StrategyType = "directional"
	StrategyVolatility  StrategyType = "volatility"
	StrategyIncome      StrategyType = "income"
	StrategyNeutral     StrategyType = "neutral"
)

type ExplorationStatus string

const (
	ExplorationSuccess      ExplorationStatus = "Success"
	ExplorationLowLiquidity ExplorationStatus = "Low_Liquidity"
	ExplorationNoExpiries   ExplorationStatus = "No_Expirations_In_Window"
	ExplorationNoStrikes    ExplorationStatus = "No_Suitable_Strikes"
)

type LiquidityGrade string

const (
	LiquidityExcellent  LiquidityGrade = "Excellent"
	LiquidityGood       LiquidityGrade = "Good"
	LiquidityAcceptable LiquidityGrade = "Acceptable"
	LiquidityThin       LiquidityGrade = "Thin"
)

type CapitalIntensity string

const (
	CapitalLight     CapitalIntensity = "Light"
	CapitalStandard  CapitalIntensity = "Standard"
	CapitalHeavy     CapitalIntensity = "Heavy"
	CapitalVeryHeavy CapitalIntensity = "VeryHeavy"
)

type ScoreClass string

const (
	ScoreValid    ScoreClass = "Valid"    // >= 80
	ScoreWatch    ScoreClass = "Watch"    // 50-79
	ScoreRejected ScoreClass = "Rejected" // < 50, descriptive only
)

func ClassifyScore(score float64) ScoreClass {
	switch {
	case score >= 80:
		return ScoreValid
	case score >= 50:
		return ScoreWatch
	default:
		return ScoreRejected
	}
}

// Contract is one concrete option leg with its market data and greeks.
// Greeks arrive already computed from the data provider; nothing downstream
// re-derives them or parses them out of text.
type Contract struct {
	Symbol       string    `json:"symbol"`
	Underlying   string    `json:"underlying"`
	Right        string    `json:"right"` // "C" or "P"
	Strike       float64   `json:"strike"`
	Expiration   time.Time `json:"expiration"`
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	OpenInterest int64     `json:"open_interest"`
	Volume       int64     `json:"volume"`

	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"`
	Vega       float64 `json:"vega"`
	ImpliedVol float64 `json:"implied_vol"`
	HasGreeks  bool    `json:"has_greeks"`
}

func (c Contract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// SpreadPercent returns the bid/ask spread as a percent of mid.
func (c Contract) SpreadPercent() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return 100.0
	}
	return (c.Ask - c.Bid) / mid * 100.0
}

func (c Contract) DaysToExpiry(asOf time.Time) int {
	return int(math.Ceil(c.Expiration.Sub(asOf).Hours() / 24))
}

type DayRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Penalty is one itemized score deduction with a plain-language reason.
type Penalty struct {
	Axis   string  `json:"axis"`
	Points float64 `json:"points"`
	Reason string  `json:"reason"`
}

// JustificationRecord is the mandatory five-section explanation attached to
// a selected candidate. A trade never executes without all five populated.
type JustificationRecord struct {
	StrategyRationale   string `json:"strategy_rationale"`
	ContractRationale   string `json:"contract_rationale"`
	LiquidityRationale  string `json:"liquidity_rationale"`
	CapitalRationale    string `json:"capital_rationale"`
	CompetitorRationale string `json:"competitor_rationale"`
}

func (j *JustificationRecord) Complete() bool {
	if j == nil {
		return false
	}
	return j.StrategyRationale != "" &&
		j.ContractRationale != "" &&
		j.LiquidityRationale != "" &&
		j.CapitalRationale != "" &&
		j.CompetitorRationale != ""
}

// SentinelRank marks candidates without contracts in the comparator stage.
const SentinelRank = 999

// StrategyCandidate is one (instrument, strategy-type) pairing under
// evaluation. Stages only ever add fields; a candidate created at run start
// is never removed before the Final Selector.
type StrategyCandidate struct {
	InstrumentID    string       `json:"instrument_id"`
	Strategy        StrategyType `json:"strategy_type"`
	Bias            string       `json:"bias"` // "BULLISH", "BEARISH", "NEUTRAL"
	TargetDays      DayRange     `json:"target_days"`
	UnderlyingPrice float64      `json:"underlying_price"`

	// Contract Explorer
	Contracts        []Contract        `json:"contracts"`
	Exploration      ExplorationStatus `json:"exploration_status"`
	LiquidityGrade   LiquidityGrade    `json:"liquidity_grade"`
	LiquidityContext string            `json:"liquidity_context"`
	IsLongDated      bool              `json:"is_long_dated"`
	HorizonClass     string            `json:"horizon_class"`
	HorizonReason    string            `json:"horizon_reason,omitempty"`
	UsedFallback     bool              `json:"used_fallback"`

	// Capital & Liquidity Annotator
	CapitalEstimate float64          `json:"capital_estimate"`
	Capital         CapitalIntensity `json:"capital_intensity"`
	PromotedLeg     int              `json:"promoted_leg"` // index into Contracts, -1 if none

	// Strategy Scorer
	QualityScore   float64    `json:"quality_score"`
	Class          ScoreClass `json:"score_class"`
	Penalties      []Penalty  `json:"penalties"`
	ScoreRationale string     `json:"score_rationale"`
	MissingAxes    []string   `json:"missing_axes,omitempty"`

	// Comparator/Ranker
	ComparisonScore float64 `json:"comparison_score"`
	Rank            int     `json:"rank"`

	// Acceptance State Machine
	Status        AcceptanceStatus `json:"status"`
	StatusReasons []string         `json:"status_reasons"`

	// Final Selector
	Selected        bool                 `json:"selected"`
	ContractsToOpen int                  `json:"contracts_to_open"`
	AllocatedUSD    float64              `json:"allocated_usd"`
	Justification   *JustificationRecord `json:"justification,omitempty"`
}

// Promoted returns the representative contract, or nil when discovery found
// nothing.
func (sc *StrategyCandidate) Promoted() *Contract {
	if sc.PromotedLeg < 0 || sc.PromotedLeg >= len(sc.Contracts) {
		return nil
	}
	return &sc.Contracts[sc.PromotedLeg]
}

// InstrumentRow is one enriched input row from the upstream discovery
// collaborator: price plus the volatility proxy used for the market-wide
// stress median.
type InstrumentRow struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	VolProxy  float64 `json:"vol_proxy"` // implied-volatility proxy, 0-100
	Trend     string  `json:"trend"`
	AssetType string  `json:"asset_type"`
}
