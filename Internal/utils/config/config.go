package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global struct {
		CapitalCeilingUSD float64 `yaml:"capital_ceiling_usd"`
		MaxPositions      int     `yaml:"max_positions"`
		Objective         string  `yaml:"objective"` // income, growth, volatility
		ArtifactsDir      string  `yaml:"artifacts_dir"`
		DebugSampleSize   int     `yaml:"debug_sample_size"`
		ExploreWorkers    int     `yaml:"explore_workers"`
	} `yaml:"global"`

	Liquidity LiquidityConfig `yaml:"liquidity"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Gates     GateConfig      `yaml:"gates"`
	Ranking   RankingWeights  `yaml:"ranking"`
	Sizing    SizingConfig    `yaml:"sizing"`

	Schedule struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"schedule"`
}

// PriceBand holds liquidity thresholds for underlyings priced at or below
// MaxPrice. Higher-priced names get looser thresholds.
type PriceBand struct {
	MaxPrice         float64 `yaml:"max_price"`
	MinOpenInterest  int64   `yaml:"min_open_interest"`
	MaxSpreadPercent float64 `yaml:"max_spread_percent"`
}

type LiquidityConfig struct {
	PriceBands []PriceBand `yaml:"price_bands"`

	// Long-dated structures get relaxed thresholds: roughly half the open
	// interest, +25% on spread.
	LongDatedMinDays      int     `yaml:"long_dated_min_days"`
	LongDatedOIFactor     float64 `yaml:"long_dated_oi_factor"`
	LongDatedSpreadFactor float64 `yaml:"long_dated_spread_factor"`

	FallbackMaxDays int `yaml:"fallback_max_days"`
}

// BandFor returns the liquidity thresholds for an underlying price,
// optionally relaxed for long-dated structures.
func (lc LiquidityConfig) BandFor(price float64, longDated bool) PriceBand {
	band := lc.PriceBands[len(lc.PriceBands)-1]
	for _, b := range lc.PriceBands {
		if price <= b.MaxPrice {
			band = b
			break
		}
	}
	if longDated {
		band.MinOpenInterest = int64(float64(band.MinOpenInterest) * lc.LongDatedOIFactor)
		band.MaxSpreadPercent = band.MaxSpreadPercent * lc.LongDatedSpreadFactor
	}
	return band
}

type ScoringConfig struct {
	SpreadPenaltyPerPercent float64 `yaml:"spread_penalty_per_percent"`
	OIPenaltyMax            float64 `yaml:"oi_penalty_max"`
	MinAbsDelta             float64 `yaml:"min_abs_delta"`     // directional structures
	MaxNeutralDelta         float64 `yaml:"max_neutral_delta"` // volatility/neutral structures
	MinVega                 float64 `yaml:"min_vega"`
	ThetaVegaRatio          float64 `yaml:"theta_vega_ratio"` // income: |theta| must dominate vega
	MinDTE                  int     `yaml:"min_dte"`
	MaxDTE                  int     `yaml:"max_dte"`
	DTEPenaltyPerDay        float64 `yaml:"dte_penalty_per_day"`
	CapitalCeilingPerTrade  float64 `yaml:"capital_ceiling_per_trade"`
	CapitalPenaltyPer1000   float64 `yaml:"capital_penalty_per_1000"`
}

type GateConfig struct {
	MinBaselineScore   float64 `yaml:"min_baseline_score"`   // below this a candidate never starts READY_NOW
	MinQualityScore    float64 `yaml:"min_quality_score"`    // gate 1, nominal 60
	MinHistoryObs      int     `yaml:"min_history_obs"`      // gate 2, nominal 120
	StressRedThreshold float64 `yaml:"stress_red_threshold"` // gate 3, nominal 40
	EventWindowDays    int     `yaml:"event_window_days"`    // gate 4, nominal 7
}

type RankingWeights struct {
	Quality   float64 `yaml:"quality"`
	Risk      float64 `yaml:"risk"`
	Cost      float64 `yaml:"cost"`
	Liquidity float64 `yaml:"liquidity"`
	Objective float64 `yaml:"objective"`
}

type SizingTier struct {
	MinScore      float64 `yaml:"min_score"`
	AllocationPct float64 `yaml:"allocation_pct"` // of the per-trade capital ceiling
}

type SizingConfig struct {
	Tiers              []SizingTier `yaml:"tiers"`
	MaxContractsPerLeg int          `yaml:"max_contracts_per_leg"`
	MinComparisonScore float64      `yaml:"min_comparison_score"`
}

func LoadConfig() (*Config, error) {
	// Resolve path relative to this file first
	_, filePath, _, ok := runtime.Caller(0)
	var basePath string
	if ok {
		basePath = filepath.Dir(filePath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	possiblePaths := []string{}
	if basePath != "" {
		possiblePaths = append(possiblePaths, filepath.Join(basePath, "config.yaml"))
	}
	possiblePaths = append(possiblePaths,
		filepath.Join(cwd, "Internal", "utils", "config", "config.yaml"),
		"Internal/utils/config/config.yaml",
		"config.yaml",
	)

	var data []byte
	for _, path := range possiblePaths {
		data, err = os.ReadFile(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration with the nominal thresholds, used by
// tests and as the fallback when no config.yaml is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Global.CapitalCeilingUSD == 0 {
		c.Global.CapitalCeilingUSD = 25000
	}
	if c.Global.MaxPositions == 0 {
		c.Global.MaxPositions = 5
	}
	if c.Global.Objective == "" {
		c.Global.Objective = "growth"
	}
	if c.Global.ArtifactsDir == "" {
		c.Global.ArtifactsDir = "artifacts"
	}
	if c.Global.DebugSampleSize == 0 {
		c.Global.DebugSampleSize = 3
	}
	if c.Global.ExploreWorkers == 0 {
		c.Global.ExploreWorkers = 4
	}

	if len(c.Liquidity.PriceBands) == 0 {
		c.Liquidity.PriceBands = []PriceBand{
			{MaxPrice: 25, MinOpenInterest: 500, MaxSpreadPercent: 5},
			{MaxPrice: 100, MinOpenInterest: 300, MaxSpreadPercent: 8},
			{MaxPrice: 250, MinOpenInterest: 200, MaxSpreadPercent: 10},
			{MaxPrice: 500, MinOpenInterest: 100, MaxSpreadPercent: 12},
			{MaxPrice: 1e9, MinOpenInterest: 50, MaxSpreadPercent: 15},
		}
	}
	if c.Liquidity.LongDatedMinDays == 0 {
		c.Liquidity.LongDatedMinDays = 365
	}
	if c.Liquidity.LongDatedOIFactor == 0 {
		c.Liquidity.LongDatedOIFactor = 0.5
	}
	if c.Liquidity.LongDatedSpreadFactor == 0 {
		c.Liquidity.LongDatedSpreadFactor = 1.25
	}
	if c.Liquidity.FallbackMaxDays == 0 {
		c.Liquidity.FallbackMaxDays = 730
	}

	if c.Scoring.SpreadPenaltyPerPercent == 0 {
		c.Scoring.SpreadPenaltyPerPercent = 2.0
	}
	if c.Scoring.OIPenaltyMax == 0 {
		c.Scoring.OIPenaltyMax = 20
	}
	if c.Scoring.MinAbsDelta == 0 {
		c.Scoring.MinAbsDelta = 0.35
	}
	if c.Scoring.MaxNeutralDelta == 0 {
		c.Scoring.MaxNeutralDelta = 0.15
	}
	if c.Scoring.MinVega == 0 {
		c.Scoring.MinVega = 0.05
	}
	if c.Scoring.ThetaVegaRatio == 0 {
		c.Scoring.ThetaVegaRatio = 1.0
	}
	if c.Scoring.MinDTE == 0 {
		c.Scoring.MinDTE = 7
	}
	if c.Scoring.MaxDTE == 0 {
		c.Scoring.MaxDTE = 400
	}
	if c.Scoring.DTEPenaltyPerDay == 0 {
		c.Scoring.DTEPenaltyPerDay = 0.5
	}
	if c.Scoring.CapitalCeilingPerTrade == 0 {
		c.Scoring.CapitalCeilingPerTrade = 5000
	}
	if c.Scoring.CapitalPenaltyPer1000 == 0 {
		c.Scoring.CapitalPenaltyPer1000 = 3.0
	}

	if c.Gates.MinBaselineScore == 0 {
		c.Gates.MinBaselineScore = 50
	}
	if c.Gates.MinQualityScore == 0 {
		c.Gates.MinQualityScore = 60
	}
	if c.Gates.MinHistoryObs == 0 {
		c.Gates.MinHistoryObs = 120
	}
	if c.Gates.StressRedThreshold == 0 {
		c.Gates.StressRedThreshold = 40
	}
	if c.Gates.EventWindowDays == 0 {
		c.Gates.EventWindowDays = 7
	}

	if c.Ranking.Quality == 0 && c.Ranking.Risk == 0 {
		c.Ranking = RankingWeights{Quality: 0.40, Risk: 0.20, Cost: 0.15, Liquidity: 0.15, Objective: 0.10}
	}

	if len(c.Sizing.Tiers) == 0 {
		c.Sizing.Tiers = []SizingTier{
			{MinScore: 90, AllocationPct: 100},
			{MinScore: 80, AllocationPct: 75},
			{MinScore: 70, AllocationPct: 50},
			{MinScore: 0, AllocationPct: 25},
		}
	}
	if c.Sizing.MaxContractsPerLeg == 0 {
		c.Sizing.MaxContractsPerLeg = 10
	}
	if c.Sizing.MinComparisonScore == 0 {
		c.Sizing.MinComparisonScore = 40
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "30 9 * * 1-5"
	}
}

func SaveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile("Internal/utils/config/config.yaml", data, 0644)
}
