package harvest

import "testing"

func TestPlanSync(t *testing.T) {
	cases := []struct {
		name        string
		remoteTotal int
		localCount  int
		decision    Decision
		budget      int
	}{
		{name: "unknown remote forces full walk", remoteTotal: -1, localCount: 40, decision: DecisionFetchAll},
		{name: "nothing stored yet", remoteTotal: 57, localCount: 0, decision: DecisionFetchAll},
		{name: "local matches remote", remoteTotal: 25, localCount: 25, decision: DecisionSkip},
		{name: "local exceeds remote", remoteTotal: 20, localCount: 25, decision: DecisionSkip},
		{name: "remote grew", remoteTotal: 30, localCount: 25, decision: DecisionFetchDelta, budget: 5},
		{name: "empty remote empty local", remoteTotal: 0, localCount: 0, decision: DecisionSkip},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanSync(tc.remoteTotal, tc.localCount)
			if plan.Decision != tc.decision {
				t.Fatalf("decision = %s, want %s", plan.Decision, tc.decision)
			}
			if plan.Budget() != tc.budget {
				t.Fatalf("budget = %d, want %d", plan.Budget(), tc.budget)
			}
		})
	}
}

func TestPlanStrings(t *testing.T) {
	if got := PlanSync(30, 25).String(); got != "fetch_delta(5)" {
		t.Fatalf("plan string = %q", got)
	}
	if got := PlanSync(-1, 0).String(); got != "fetch_all" {
		t.Fatalf("plan string = %q", got)
	}
	if got := PlanSync(10, 10).String(); got != "skip" {
		t.Fatalf("plan string = %q", got)
	}
}
