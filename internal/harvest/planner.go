package harvest

import "fmt"

// Decision says how much of an event's exhibitor listing must be fetched.
type Decision int

const (
	// DecisionSkip: the store already holds at least as many companies as
	// the remote declares; no fetch is issued for the event.
	DecisionSkip Decision = iota
	// DecisionFetchAll: nothing is stored locally yet, or the remote total
	// is unknown; walk every expected page.
	DecisionFetchAll
	// DecisionFetchDelta: walk only until the missing count of new records
	// has been surfaced.
	DecisionFetchDelta
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionFetchAll:
		return "fetch_all"
	case DecisionFetchDelta:
		return "fetch_delta"
	default:
		return "unknown"
	}
}

// Plan is the sync decision computed once per event before paging begins.
type Plan struct {
	Decision Decision
	// Delta is the count of new records still needed. It is a lower-bound
	// fetch budget, not a page count: remote ordering may interleave
	// already-known records with new ones.
	Delta int
}

// PlanSync compares the remote-declared exhibitor total against the count
// already persisted for the event. remoteTotal < 0 means the calendar did
// not declare a count; the page walk then probes it on page 1.
func PlanSync(remoteTotal, localCount int) Plan {
	if remoteTotal < 0 {
		return Plan{Decision: DecisionFetchAll}
	}
	if localCount >= remoteTotal {
		return Plan{Decision: DecisionSkip}
	}
	if localCount <= 0 {
		return Plan{Decision: DecisionFetchAll, Delta: remoteTotal}
	}
	return Plan{Decision: DecisionFetchDelta, Delta: remoteTotal - localCount}
}

// Budget returns the walk's new-record budget; 0 means unbounded.
func (p Plan) Budget() int {
	if p.Decision == DecisionFetchDelta {
		return p.Delta
	}
	return 0
}

func (p Plan) String() string {
	if p.Decision == DecisionFetchDelta {
		return fmt.Sprintf("fetch_delta(%d)", p.Delta)
	}
	return p.Decision.String()
}
