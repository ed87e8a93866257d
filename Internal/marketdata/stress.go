package marketdata

import (
	"context"
	"sort"

	"github.com/fazecat/optionsmith/Internal/types"
)

type StressLevel string

const (
	StressGreen  StressLevel = "GREEN"
	StressYellow StressLevel = "YELLOW"
	StressRed    StressLevel = "RED"
)

// StressReading is the run-wide market stress value: computed once at run
// start from the cross-sectional median of the instruments' volatility
// proxy, read-only afterwards, discarded at run end.
type StressReading struct {
	Level        StressLevel `json:"level"`
	MedianProxy  float64     `json:"median_proxy"`
	Observations int         `json:"observations"`
}

type StressSource interface {
	StressReading(ctx context.Context) (StressReading, error)
}

// CrossSectionalStress derives the stress reading from the enriched input
// rows of the current run.
type CrossSectionalStress struct {
	Rows            []types.InstrumentRow
	RedThreshold    float64
	YellowThreshold float64 // defaults to 75% of red
}

func (cs *CrossSectionalStress) StressReading(ctx context.Context) (StressReading, error) {
	proxies := make([]float64, 0, len(cs.Rows))
	for _, row := range cs.Rows {
		if row.VolProxy > 0 {
			proxies = append(proxies, row.VolProxy)
		}
	}

	reading := StressReading{Level: StressGreen, Observations: len(proxies)}
	if len(proxies) == 0 {
		return reading, nil
	}

	reading.MedianProxy = median(proxies)

	yellow := cs.YellowThreshold
	if yellow == 0 {
		yellow = cs.RedThreshold * 0.75
	}
	switch {
	case reading.MedianProxy >= cs.RedThreshold:
		reading.Level = StressRed
	case reading.MedianProxy >= yellow:
		reading.Level = StressYellow
	}
	return reading, nil
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
