package raptor

import "time"

// Timings is the engine's explicit timing report. The per-call-site
// counters and ad hoc logging the original implementation scattered
// through the hot loop are not preserved; everything is rolled up here
// and handed back to the caller once a search completes.
type Timings struct {
	PrefilterDuration   time.Duration
	ScheduledPassDuration time.Duration
	UpperBoundDuration  time.Duration
	MonteCarloDuration  time.Duration
	TransferDuration    time.Duration
	Iterations          int
	Minutes             int
}
