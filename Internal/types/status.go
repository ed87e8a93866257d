package types

import "fmt"

// AcceptanceStatus is the closed set of pipeline outcomes. Within a run a
// candidate may only move down the hierarchy; the sole upward path is the
// maturation pass at the start of the next run.
type AcceptanceStatus string

const (
	StatusReadyNow          AcceptanceStatus = "READY_NOW"
	StatusStructurallyReady AcceptanceStatus = "STRUCTURALLY_READY"
	StatusWait              AcceptanceStatus = "WAIT"
	StatusWaitEarnings      AcceptanceStatus = "WAIT_EARNINGS" // sub-state of WAIT
	StatusAvoid             AcceptanceStatus = "AVOID"
	StatusIncomplete        AcceptanceStatus = "INCOMPLETE"
	StatusHaltedStress      AcceptanceStatus = "HALTED_MARKET_STRESS"
)

// hierarchy position; WAIT_EARNINGS shares WAIT's rung.
var statusDepth = map[AcceptanceStatus]int{
	StatusReadyNow:          0,
	StatusStructurallyReady: 1,
	StatusWait:              2,
	StatusWaitEarnings:      2,
	StatusAvoid:             3,
	StatusIncomplete:        4,
	StatusHaltedStress:      5,
}

func (s AcceptanceStatus) Valid() bool {
	_, ok := statusDepth[s]
	return ok
}

// Depth returns the position in the fixed hierarchy (0 = READY_NOW).
func (s AcceptanceStatus) Depth() int {
	d, ok := statusDepth[s]
	if !ok {
		return -1
	}
	return d
}

// CanDowngradeTo reports whether moving from s to target is a legal
// strictly-downward transition.
func (s AcceptanceStatus) CanDowngradeTo(target AcceptanceStatus) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	return target.Depth() > s.Depth()
}

// Downgrade moves the candidate down the hierarchy and records why. An
// upward or sideways move is an integrity violation and is refused.
func (sc *StrategyCandidate) Downgrade(target AcceptanceStatus, reason string) error {
	if !sc.Status.CanDowngradeTo(target) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", sc.Status, target, sc.InstrumentID)
	}
	sc.Status = target
	sc.StatusReasons = append(sc.StatusReasons, reason)
	return nil
}
