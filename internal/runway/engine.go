// Package runway decides, once per frame, which airplanes hold a runway.
//
// Each frame the engine ticks every airborne airplane, sorts the survivors
// into landers and waiters, and admits at most one waiter. Without
// reprioritization a waiter is admitted only while nobody is landing,
// whatever the runway count. With reprioritization a waiter takes any free
// runway, and when every runway is busy the best-fueled lander may be
// halted in favour of the neediest waiter.
package runway

import (
	"errors"
	"fmt"

	"github.com/yegors/runway-sim/internal/airplane"
)

// PreemptionReserve is the fuel a halted lander must keep beyond its own
// remaining altitude: one full landing cycle of another airplane plus one
// liter.
const PreemptionReserve = airplane.InitialAltitude + 1

// ErrInvalidRunwayCount is returned for a runway count below one
var ErrInvalidRunwayCount = errors.New("runway count must be positive")

// Policy selects the admission behaviour
type Policy struct {
	RunwayCount      int  `json:"runway_count"`
	Reprioritization bool `json:"reprioritization"`
}

// Validate checks the policy for configuration misuse
func (p Policy) Validate() error {
	if p.RunwayCount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRunwayCount, p.RunwayCount)
	}
	return nil
}

// Choice is an optional index into the airplane slice
type Choice struct {
	Index int
	Valid bool
}

func chosen(i int) Choice {
	return Choice{Index: i, Valid: true}
}

// Survey is the classification of the airborne airplanes after ticking
type Survey struct {
	// Landing holds the indices of airplanes occupying a runway, in
	// arrival order.
	Landing []int
	// Best is the waiting airplane with the least fuel that can still cover
	// its remaining descent. Ties go to the earliest arrival.
	Best Choice
	// Available is the number of runways not occupied by a lander.
	Available int
}

// Decision records everything the engine did in one frame
type Decision struct {
	Touchdowns []int
	Crashes    []int
	Admitted   Choice
	// Preempted is the lander sent back to the waiting pool; the waiter
	// that replaced it is reported in Admitted.
	Preempted Choice
	Survey    Survey
}

// Engine applies a Policy to the airplanes of one trial
type Engine struct {
	policy Policy
}

// NewEngine creates an engine, rejecting invalid policies
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

// Step advances every airborne airplane by one frame and arbitrates the
// runways. planes is mutated in place.
func (e *Engine) Step(planes []airplane.Airplane) Decision {
	var d Decision

	for i := range planes {
		if planes[i].Landed {
			continue
		}
		switch planes[i].Advance() {
		case airplane.Touchdown:
			d.Touchdowns = append(d.Touchdowns, i)
		case airplane.Crash:
			d.Crashes = append(d.Crashes, i)
		}
	}

	d.Survey = e.Classify(planes)
	d.Admitted, d.Preempted = e.Arbitrate(planes, d.Survey)
	return d
}

// Classify collects the landers and the best landing candidate
func (e *Engine) Classify(planes []airplane.Airplane) Survey {
	s := Survey{Available: e.policy.RunwayCount}

	for i := range planes {
		p := &planes[i]
		switch {
		case p.Terminal():
			continue
		case p.Landing:
			s.Landing = append(s.Landing, i)
			s.Available--
		case p.CanAttemptLanding():
			if !s.Best.Valid || p.Fuel < planes[s.Best.Index].Fuel {
				s.Best = chosen(i)
			}
		}
	}
	return s
}

// Arbitrate admits the best candidate to a free runway or, failing that,
// tries a preemption. It returns the admitted airplane and the halted one.
// At most one airplane is admitted per frame even if several runways are
// free. The control policy keeps a single active lander regardless of
// RunwayCount.
func (e *Engine) Arbitrate(planes []airplane.Airplane, s Survey) (admitted, preempted Choice) {
	if !s.Best.Valid {
		return Choice{}, Choice{}
	}

	if !e.policy.Reprioritization {
		if len(s.Landing) > 0 {
			return Choice{}, Choice{}
		}
		planes[s.Best.Index].Landing = true
		return s.Best, Choice{}
	}

	if s.Available > 0 {
		planes[s.Best.Index].Landing = true
		return s.Best, Choice{}
	}

	lander := mostFueled(planes, s.Landing)
	if !lander.Valid {
		return Choice{}, Choice{}
	}
	if !ShouldPreempt(planes[lander.Index], planes[s.Best.Index]) {
		return Choice{}, Choice{}
	}

	planes[lander.Index].Landing = false
	planes[s.Best.Index].Landing = true
	return s.Best, lander
}

// ShouldPreempt reports whether lander should give up its runway to
// candidate: the candidate must be shorter on fuel, and the lander must be
// able to wait out another full landing and still finish its own descent.
func ShouldPreempt(lander, candidate airplane.Airplane) bool {
	return candidate.Fuel < lander.Fuel && lander.Fuel >= PreemptionReserve+lander.Altitude
}

// mostFueled picks the lander with the most fuel, earliest on ties
func mostFueled(planes []airplane.Airplane, landing []int) Choice {
	var best Choice
	for _, i := range landing {
		if !best.Valid || planes[i].Fuel > planes[best.Index].Fuel {
			best = chosen(i)
		}
	}
	return best
}
