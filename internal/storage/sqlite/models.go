package sqlite

import (
	"time"

	"github.com/yegors/runway-sim/internal/trials"
)

// RunRecord is the stored header of a finished trial batch
type RunRecord struct {
	ID             string         `json:"id"`
	Config         trials.Config  `json:"config"`
	Summary        trials.Summary `json:"summary"`
	ControlCrashes int            `json:"control_crashes"`
	TestCrashes    int            `json:"test_crashes"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}
