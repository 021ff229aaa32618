// Package raptor implements the round-based transit routing core: a
// range-raptor shortest-path search over scheduled and frequency-based
// transit patterns, with Monte-Carlo randomisation of frequency phases.
//
// The package has no I/O and no third-party dependencies. The corpus
// offers no bitset/priority-queue/RNG library suited to the tight
// per-stop integer scans this package performs; math/rand is the only
// RNG the retrieved examples use anywhere, so it is used here too.
package raptor

import "math"

// Unreached marks a stop or target that was never reached by a search.
const Unreached = math.MaxInt32

const (
	// BoardSlackSeconds and MinimumBoardWaitSec are both carried from the
	// original implementation at the same value. Only MinimumBoardWaitSec
	// is consulted on the boarding path; BoardSlackSeconds is kept as a
	// named constant because the source it was distilled from defines
	// both and never clarifies the relationship between them.
	BoardSlackSeconds   = 60
	MinimumBoardWaitSec = 60

	// DepartureStepSec is the minute-granularity step of the range-raptor
	// sweep over the departure-time window.
	DepartureStepSec = 60
)

// StopIndex, PatternIndex and TripIndex are dense zero-based indices into
// the arrays of a TransitLayer. They exist as named types only to keep
// call sites self-documenting; arithmetic on them is unrestricted.
type StopIndex int32
type PatternIndex int32
type TripIndex int32

// PickupDropoff mirrors the GTFS pickup_type/drop_off_type domain.
type PickupDropoff uint8

const (
	PickupDropoffNone PickupDropoff = iota
	PickupDropoffRegular
	PickupDropoffPhoneAgency
	PickupDropoffCoordinateWithDriver
)

func (p PickupDropoff) Allowed() bool {
	return p == PickupDropoffRegular
}
