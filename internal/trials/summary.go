package trials

import (
	"github.com/yegors/runway-sim/internal/simulation"
)

// GroupSummary totals the results of one group of trials
type GroupSummary struct {
	Trials      int     `json:"trials"`
	Crashes     int     `json:"crashes"`
	Landed      int     `json:"landed"`
	Spawned     int     `json:"spawned"`
	Preemptions int     `json:"preemptions"`
	CrashRate   float64 `json:"crash_rate"` // crashes per spawned airplane
}

func (g *GroupSummary) add(r simulation.Result) {
	g.Trials++
	g.Crashes += r.Crashes
	g.Landed += r.Landed
	g.Spawned += r.Spawned
	g.Preemptions += r.Preemptions
}

// Summary compares the control and test groups
type Summary struct {
	Control GroupSummary `json:"control"`
	Test    GroupSummary `json:"test"`
	// CrashDelta is test crashes minus control crashes; negative means
	// reprioritization saved airplanes.
	CrashDelta int `json:"crash_delta"`
}

// Aggregate merges per-trial results into group totals
func Aggregate(results []simulation.Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Control {
			s.Control.add(r)
		} else {
			s.Test.add(r)
		}
	}
	for _, g := range []*GroupSummary{&s.Control, &s.Test} {
		if g.Spawned > 0 {
			g.CrashRate = float64(g.Crashes) / float64(g.Spawned)
		}
	}
	s.CrashDelta = s.Test.Crashes - s.Control.Crashes
	return s
}
