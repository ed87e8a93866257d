package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fazecat/optionsmith/Internal/chain"
	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils"
	"github.com/fazecat/optionsmith/Internal/utils/config"
)

// Explorer discovers contracts for every candidate. It never removes a
// candidate: a failed discovery becomes an annotation, not a missing row.
// Distinct instruments are explored concurrently; candidates sharing an
// instrument reuse one cached chain fetch.
type Explorer struct {
	Chain       chain.Provider
	Liquidity   config.LiquidityConfig
	AsOf        time.Time
	Workers     int
	DebugDir    string
	DebugSample int
}

func NewExplorer(provider chain.Provider, cfg *config.Config, asOf time.Time) *Explorer {
	return &Explorer{
		Chain:       provider,
		Liquidity:   cfg.Liquidity,
		AsOf:        asOf,
		Workers:     cfg.Global.ExploreWorkers,
		DebugDir:    cfg.Global.ArtifactsDir,
		DebugSample: cfg.Global.DebugSampleSize,
	}
}

// Explore annotates every candidate with discovered contracts, liquidity
// grade and horizon tags. Row count in equals row count out, enforced.
func (e *Explorer) Explore(ctx context.Context, candidates []types.StrategyCandidate) ([]types.StrategyCandidate, error) {
	out := make([]types.StrategyCandidate, len(candidates))
	copy(out, candidates)

	// group candidate indices by instrument so one worker owns an instrument
	byInstrument := make(map[string][]int)
	order := []string{}
	for i := range out {
		sym := out[i].InstrumentID
		if _, ok := byInstrument[sym]; !ok {
			order = append(order, sym)
		}
		byInstrument[sym] = append(byInstrument[sym], i)
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan string)
	var wg sync.WaitGroup

	debugged := 0
	var debugMu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				for _, idx := range byInstrument[sym] {
					e.exploreCandidate(ctx, &out[idx])
				}

				debugMu.Lock()
				shouldDebug := debugged < e.DebugSample
				if shouldDebug {
					debugged++
				}
				debugMu.Unlock()
				if shouldDebug {
					e.writeDebugSnapshot(ctx, sym, byInstrument[sym], out)
				}
			}
		}()
	}
	for _, sym := range order {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()

	if len(out) != len(candidates) {
		return nil, &IntegrityError{Stage: "explorer",
			Detail: fmt.Sprintf("row count drifted: %d in, %d out", len(candidates), len(out))}
	}
	return out, nil
}

func (e *Explorer) exploreCandidate(ctx context.Context, cand *types.StrategyCandidate) {
	cand.PromotedLeg = -1

	from := e.AsOf.AddDate(0, 0, cand.TargetDays.Min)
	to := e.AsOf.AddDate(0, 0, cand.TargetDays.Max)

	contracts, err := e.Chain.FetchChain(ctx, cand.InstrumentID, from, to)
	if err != nil {
		// collaborator failure degrades to a descriptive annotation
		log.Printf("⚠️  Chain fetch failed for %s: %v", cand.InstrumentID, err)
		cand.Exploration = types.ExplorationNoExpiries
		cand.LiquidityGrade = types.LiquidityThin
		cand.LiquidityContext = "chain provider unavailable — no contracts discovered"
		return
	}

	legs := selectLegs(cand, contracts, e.AsOf)

	// Documented fallback: a directional single-leg structure may retry at a
	// longer horizon when the target window is empty. Multi-leg volatility
	// and neutral structures never fall back this way.
	if len(legs) == 0 && cand.Strategy == types.StrategyDirectional {
		fallbackTo := e.AsOf.AddDate(0, 0, e.Liquidity.FallbackMaxDays)
		farContracts, ferr := e.Chain.FetchChain(ctx, cand.InstrumentID, to, fallbackTo)
		if ferr == nil {
			if farLegs := selectLegs(cand, farContracts, e.AsOf); len(farLegs) > 0 {
				legs = farLegs
				cand.UsedFallback = true
				cand.HorizonReason = fmt.Sprintf(
					"no acceptable contract within %d-%d days; fell back to longer horizon",
					cand.TargetDays.Min, cand.TargetDays.Max)
			}
		}
	}

	if len(legs) == 0 {
		if len(contracts) == 0 {
			cand.Exploration = types.ExplorationNoExpiries
			cand.LiquidityContext = "no expirations inside the target window"
		} else {
			cand.Exploration = types.ExplorationNoStrikes
			cand.LiquidityContext = fmt.Sprintf("%d contracts in window but no suitable strikes", len(contracts))
		}
		cand.LiquidityGrade = types.LiquidityThin
		return
	}

	cand.Contracts = legs
	e.tagHorizon(cand)
	e.gradeLiquidity(cand)

	if cand.LiquidityGrade == types.LiquidityThin {
		cand.Exploration = types.ExplorationLowLiquidity
	} else {
		cand.Exploration = types.ExplorationSuccess
	}
}

// tagHorizon classifies time-to-expiration. Long-dated structures are
// tagged, never silently dropped for failing short-dated heuristics.
func (e *Explorer) tagHorizon(cand *types.StrategyCandidate) {
	maxDTE := 0
	for _, leg := range cand.Contracts {
		if dte := leg.DaysToExpiry(e.AsOf); dte > maxDTE {
			maxDTE = dte
		}
	}

	switch {
	case maxDTE >= e.Liquidity.LongDatedMinDays:
		cand.IsLongDated = true
		cand.HorizonClass = "long"
		if cand.HorizonReason == "" {
			cand.HorizonReason = "long-dated structure — lower liquidity acceptable"
		}
	case maxDTE >= 60:
		cand.HorizonClass = "medium"
	default:
		cand.HorizonClass = "short"
	}
}

// gradeLiquidity assigns the continuous qualitative grade. Thresholds come
// from the underlying's price band and are relaxed for long-dated legs.
func (e *Explorer) gradeLiquidity(cand *types.StrategyCandidate) {
	band := e.Liquidity.BandFor(cand.UnderlyingPrice, cand.IsLongDated)

	// grade on the weakest leg
	worstOI := int64(-1)
	worstSpread := 0.0
	for _, leg := range cand.Contracts {
		if worstOI == -1 || leg.OpenInterest < worstOI {
			worstOI = leg.OpenInterest
		}
		if sp := leg.SpreadPercent(); sp > worstSpread {
			worstSpread = sp
		}
	}

	oiRatio := float64(worstOI) / float64(band.MinOpenInterest)
	spreadRatio := worstSpread / band.MaxSpreadPercent

	switch {
	case oiRatio >= 2.0 && spreadRatio <= 0.5:
		cand.LiquidityGrade = types.LiquidityExcellent
	case oiRatio >= 1.0 && spreadRatio <= 1.0:
		cand.LiquidityGrade = types.LiquidityGood
	case oiRatio >= 0.7 && spreadRatio <= 1.3:
		cand.LiquidityGrade = types.LiquidityAcceptable
	default:
		cand.LiquidityGrade = types.LiquidityThin
	}

	context := fmt.Sprintf("worst-leg OI %d (band min %d), spread %.1f%% (band max %.1f%%)",
		worstOI, band.MinOpenInterest, worstSpread, band.MaxSpreadPercent)
	if cand.UnderlyingPrice > 250 {
		context += "; high-price underlying — wide spreads expected"
	}
	if cand.IsLongDated {
		context += "; long-dated thresholds applied"
	}
	cand.LiquidityContext = context
}

// selectLegs picks the concrete legs for a candidate's structure from the
// raw chain. Empty result means no suitable strikes in the window.
func selectLegs(cand *types.StrategyCandidate, contracts []types.Contract, asOf time.Time) []types.Contract {
	if len(contracts) == 0 || cand.UnderlyingPrice <= 0 {
		return nil
	}

	// prefer the expiration nearest the middle of the target window
	targetDTE := (cand.TargetDays.Min + cand.TargetDays.Max) / 2
	byExpiry := make(map[time.Time][]types.Contract)
	expiries := []time.Time{}
	for _, c := range contracts {
		if _, ok := byExpiry[c.Expiration]; !ok {
			expiries = append(expiries, c.Expiration)
		}
		byExpiry[c.Expiration] = append(byExpiry[c.Expiration], c)
	}
	sort.Slice(expiries, func(i, j int) bool {
		return utils.Abs(float64(daysBetween(asOf, expiries[i])-targetDTE)) <
			utils.Abs(float64(daysBetween(asOf, expiries[j])-targetDTE))
	})

	for _, exp := range expiries {
		legs := legsForStrategy(cand, byExpiry[exp])
		if len(legs) > 0 {
			return legs
		}
	}
	return nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func legsForStrategy(cand *types.StrategyCandidate, chain []types.Contract) []types.Contract {
	price := cand.UnderlyingPrice

	switch cand.Strategy {
	case types.StrategyDirectional:
		right := "C"
		if cand.Bias == "BEARISH" {
			right = "P"
		}
		if leg := nearestStrike(chain, right, price, 0.10); leg != nil {
			return []types.Contract{*leg}
		}

	case types.StrategyIncome:
		// credit structure: short OTM put under a bullish/neutral bias,
		// short OTM call under a bearish one
		if cand.Bias == "BEARISH" {
			if leg := nearestStrike(chain, "C", price*1.05, 0.08); leg != nil {
				return []types.Contract{*leg}
			}
		} else {
			if leg := nearestStrike(chain, "P", price*0.95, 0.08); leg != nil {
				return []types.Contract{*leg}
			}
		}

	case types.StrategyVolatility:
		// straddle: ATM call + ATM put
		call := nearestStrike(chain, "C", price, 0.05)
		put := nearestStrike(chain, "P", price, 0.05)
		if call != nil && put != nil {
			return []types.Contract{*call, *put}
		}

	case types.StrategyNeutral:
		// strangle: OTM call + OTM put
		call := nearestStrike(chain, "C", price*1.05, 0.06)
		put := nearestStrike(chain, "P", price*0.95, 0.06)
		if call != nil && put != nil {
			return []types.Contract{*call, *put}
		}
	}
	return nil
}

// nearestStrike finds the contract of the given right whose strike is
// closest to target, within tolerance (fraction of target).
func nearestStrike(chain []types.Contract, right string, target, tolerance float64) *types.Contract {
	var best *types.Contract
	bestDist := target * tolerance

	for i := range chain {
		if chain[i].Right != right {
			continue
		}
		dist := utils.Abs(chain[i].Strike - target)
		if dist <= bestDist {
			c := chain[i]
			best = &c
			bestDist = dist
		}
	}
	return best
}

// writeDebugSnapshot dumps the raw strikes/spreads/OI considered for one
// instrument. Offline audit only; nothing downstream reads these files.
func (e *Explorer) writeDebugSnapshot(ctx context.Context, instrument string, indices []int, table []types.StrategyCandidate) {
	if e.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(e.DebugDir, 0755); err != nil {
		return
	}

	snapshot := map[string]interface{}{
		"instrument": instrument,
		"as_of":      e.AsOf.Format("2006-01-02"),
		"candidates": []interface{}{},
	}
	rows := []interface{}{}
	for _, idx := range indices {
		cand := table[idx]
		legs := []map[string]interface{}{}
		for _, leg := range cand.Contracts {
			legs = append(legs, map[string]interface{}{
				"symbol":        leg.Symbol,
				"strike":        leg.Strike,
				"spread_pct":    leg.SpreadPercent(),
				"open_interest": leg.OpenInterest,
			})
		}
		rows = append(rows, map[string]interface{}{
			"strategy": cand.Strategy,
			"status":   cand.Exploration,
			"legs":     legs,
		})
	}
	snapshot["candidates"] = rows

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(e.DebugDir, fmt.Sprintf("chain_%s_%s.json", instrument, e.AsOf.Format("20060102")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("Debug snapshot write failed for %s: %v", instrument, err)
	}
}
