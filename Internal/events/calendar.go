package events

import "context"

// Calendar reports the next known discrete binary event (earnings) for an
// instrument. known=false means the date is unknown, which downstream gates
// must treat as lower-risk than known-and-close, never the reverse.
type Calendar interface {
	DaysToNextEvent(ctx context.Context, instrument string) (days int, known bool, err error)
}

// StaticCalendar serves fixed event distances; used in tests and when no
// calendar API key is configured.
type StaticCalendar struct {
	Days map[string]int
}

func (sc *StaticCalendar) DaysToNextEvent(ctx context.Context, instrument string) (int, bool, error) {
	if sc == nil || sc.Days == nil {
		return 0, false, nil
	}
	d, ok := sc.Days[instrument]
	return d, ok, nil
}
