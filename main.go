package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/fazecat/optionsmith/Internal/chain"
	datafeed "github.com/fazecat/optionsmith/Internal/database"
	"github.com/fazecat/optionsmith/Internal/events"
	"github.com/fazecat/optionsmith/Internal/marketdata"
	"github.com/fazecat/optionsmith/Internal/pipeline"
	"github.com/fazecat/optionsmith/Internal/types"
	"github.com/fazecat/optionsmith/Internal/utils/config"
	"github.com/fazecat/optionsmith/Internal/utils/formatting"
)

func main() {
	proposalsPath := flag.String("proposals", "proposals.json", "path to the upstream proposals file")
	daemon := flag.Bool("daemon", false, "run on the configured schedule instead of once")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file found, using environment as-is")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: config load failed (%v), using defaults", err)
		cfg = config.Default()
	}

	persist := true
	if err := datafeed.InitDatabase(); err != nil {
		log.Printf("Warning: database unavailable (%v) — running without persistence", err)
		persist = false
	} else {
		defer datafeed.CloseDatabase()
	}

	// account equity, when reachable, overrides the configured capital ceiling
	apiKey := os.Getenv("ALPACA_API_KEY")
	secretKey := os.Getenv("ALPACA_API_SECRET")
	if apiKey != "" && secretKey != "" {
		alpclient := alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: secretKey,
			BaseURL:   "https://paper-api.alpaca.markets",
		})
		account, err := alpclient.GetAccount()
		if err != nil {
			log.Printf("Warning: could not fetch account (%v) — using configured capital ceiling", err)
		} else {
			equity, _ := account.Equity.Float64()
			if equity > 0 {
				cfg.Global.CapitalCeilingUSD = equity
				log.Printf("💰 Capital ceiling set from account equity: %s", formatting.Money(equity))
			}
		}
	} else {
		log.Println("Warning: Alpaca API keys not configured; chain discovery will degrade to annotations")
	}

	if !*daemon {
		if err := runOnce(cfg, *proposalsPath, persist); err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Schedule.Cron, func() {
		if err := runOnce(cfg, *proposalsPath, persist); err != nil {
			log.Printf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Invalid schedule %q: %v", cfg.Schedule.Cron, err)
	}
	log.Printf("⏰ Daemon started with schedule %q", cfg.Schedule.Cron)
	c.Run()
}

func runOnce(cfg *config.Config, proposalsPath string, persist bool) error {
	ctx := context.Background()
	asOf := time.Now().UTC()

	candidates, instruments, err := pipeline.LoadProposals(proposalsPath)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no candidates proposed in %s", proposalsPath)
	}

	var prior []pipeline.PriorOutcome
	if persist {
		prior, err = datafeed.LoadPriorOutcomes(ctx)
		if err != nil {
			log.Printf("Warning: prior outcomes unavailable (%v) — maturation skipped", err)
		}
	}

	bars := marketdata.NewBarClient()
	p := &pipeline.Pipeline{
		Cfg:   cfg,
		Chain: chain.NewAlpacaProvider(),
		Vol:   marketdata.NewBarVolContext(bars, cfg.Gates.MinHistoryObs+60, asOf),
		StressSrc: &marketdata.CrossSectionalStress{
			Rows:         instruments,
			RedThreshold: cfg.Gates.StressRedThreshold,
		},
		Calendar: events.NewFinnhubCalendar(asOf),
		Prior:    prior,
		AsOf:     asOf,
	}

	result, err := p.Run(ctx, candidates)
	if err != nil {
		return err
	}

	printSelections(result)

	if persist {
		if _, err := datafeed.SaveRun(ctx, result); err != nil {
			return fmt.Errorf("run completed but persistence failed: %w", err)
		}
	}
	return nil
}

// printWatchlist lists unselected Watch-class candidates so an operator can
// revisit near-misses without digging through snapshots.
func printWatchlist(result *pipeline.RunResult) {
	if len(result.Snapshots) == 0 {
		return
	}
	final := result.Snapshots[len(result.Snapshots)-1].Table

	header := false
	for _, cand := range final {
		if cand.Selected || cand.Class != types.ScoreWatch {
			continue
		}
		if !header {
			fmt.Println("\nWatchlist (scored 50-79, not selected):")
			header = true
		}
		fmt.Printf("  %-6s %-12s quality %.1f  status %s\n",
			cand.InstrumentID, cand.Strategy, cand.QualityScore, cand.Status)
	}
}

func printSelections(result *pipeline.RunResult) {
	fmt.Println()
	fmt.Println(formatting.Separator(64))
	fmt.Printf("Run %s | stress %s (median proxy %s)\n",
		result.AsOf.Format("2006-01-02"), result.Stress.Level, formatting.Percent(result.Stress.MedianProxy))
	fmt.Println(formatting.Separator(64))

	for status, count := range result.Summary.CountsByStatus {
		fmt.Printf("  %-22s %d\n", status, count)
	}

	printWatchlist(result)

	if len(result.Selected) == 0 {
		fmt.Println("\nNo candidate reached READY_NOW selection this run.")
		return
	}

	for _, sel := range result.Selected {
		promoted := sel.Promoted()
		fmt.Printf("\n▶ %s %s — %d contracts, %s allocated\n",
			sel.InstrumentID, sel.Strategy, sel.ContractsToOpen, formatting.Money(sel.AllocatedUSD))
		if promoted != nil {
			fmt.Printf("  leg: %s exp %s strike %.2f (%s)\n",
				promoted.Symbol, promoted.Expiration.Format("2006-01-02"), promoted.Strike, promoted.Right)
		}
		fmt.Printf("  why strategy:    %s\n", sel.Justification.StrategyRationale)
		fmt.Printf("  why contract:    %s\n", sel.Justification.ContractRationale)
		fmt.Printf("  why liquidity:   %s\n", sel.Justification.LiquidityRationale)
		fmt.Printf("  why capital:     %s\n", sel.Justification.CapitalRationale)
		fmt.Printf("  why not others:  %s\n", sel.Justification.CompetitorRationale)
	}
}
