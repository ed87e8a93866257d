package marketdata

import (
	"context"
	"math"
	"time"

	"github.com/fazecat/optionsmith/Internal/utils"
)

// VolContext answers how today's volatility ranks against an instrument's
// own history. Observations below the configured minimum lookback count as
// an availability gap for the acceptance machine, not an error.
type VolContext interface {
	// PercentileRank returns the current volatility percentile (0-100) and
	// the number of observations behind it.
	PercentileRank(ctx context.Context, instrument string) (float64, int, error)
}

const realizedVolWindow = 20

// BarVolContext computes a realized-volatility percentile from daily bars.
type BarVolContext struct {
	Bars     *BarClient
	Lookback int // daily bars to request
	AsOf     time.Time
}

func NewBarVolContext(bars *BarClient, lookback int, asOf time.Time) *BarVolContext {
	return &BarVolContext{Bars: bars, Lookback: lookback, AsOf: asOf}
}

func (vc *BarVolContext) PercentileRank(ctx context.Context, instrument string) (float64, int, error) {
	bars, err := vc.Bars.GetDailyBars(ctx, instrument, vc.Lookback, vc.AsOf)
	if err != nil {
		return 0, 0, err
	}

	series := rollingRealizedVol(bars, realizedVolWindow)
	if len(series) == 0 {
		return 0, len(series), nil
	}

	current := series[len(series)-1]
	below := 0
	for _, v := range series {
		if v < current {
			below++
		}
	}
	rank := float64(below) / float64(len(series)) * 100.0
	return rank, len(series), nil
}

// rollingRealizedVol returns annualized close-to-close volatility over a
// rolling window, one observation per bar once the window fills.
func rollingRealizedVol(bars []Bar, window int) []float64 {
	if len(bars) < window+1 {
		return nil
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(bars[i].Close/bars[i-1].Close))
	}
	if len(returns) < window {
		return nil
	}

	out := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		out = append(out, stddev(returns[i-window:i])*math.Sqrt(252)*100)
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := utils.Average(values)

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}
