package raptor

import "math/rand"

// offsetKey addresses a single frequency entry: (pattern, trip within
// pattern, entry within trip).
type offsetKey struct {
	pattern PatternIndex
	trip    TripIndex
	entry   int
}

// FrequencyOffsets holds, for every frequency entry of every
// frequency-based trip in a TransitLayer, the phase of its first
// vehicle, redrawn on every Randomize call. It is owned by one Engine
// (one origin search) and never shared.
type FrequencyOffsets struct {
	layer *TransitLayer
	// offsets[pattern][trip][entry]; nil for a non-frequency trip, and -1
	// for an entry whose offset has not been drawn yet.
	offsets [][][]int32
	rng     *rand.Rand
}

func NewFrequencyOffsets(layer *TransitLayer, lockSchedules bool, seed int64) *FrequencyOffsets {
	offsets := make([][][]int32, len(layer.Patterns))
	for pi, p := range layer.Patterns {
		offsets[pi] = make([][]int32, len(p.Trips))
		for ti, t := range p.Trips {
			if !t.IsFrequency {
				continue
			}
			offsets[pi][ti] = make([]int32, len(t.Frequencies))
			for e := range t.Frequencies {
				offsets[pi][ti][e] = -1
			}
		}
	}
	var rng *rand.Rand
	if lockSchedules {
		rng = rand.New(rand.NewSource(seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &FrequencyOffsets{layer: layer, offsets: offsets, rng: rng}
}

// Offset returns the drawn phase for the given frequency entry.
func (f *FrequencyOffsets) Offset(pattern PatternIndex, trip TripIndex, entry int) int32 {
	return f.offsets[pattern][trip][entry]
}

// Randomize redraws every non-phased entry's offset uniformly in
// [0, headway), then resolves phased entries against their already-drawn
// source in dependency order. A phased entry's offset is the source
// entry's departure-from-start at the shared stop, shifted by
// PhaseSeconds, reduced modulo the phased entry's own headway.
func (f *FrequencyOffsets) Randomize() error {
	for pi, p := range f.layer.Patterns {
		for ti, t := range p.Trips {
			if !t.IsFrequency {
				continue
			}
			for e, entry := range t.Frequencies {
				if entry.HasPhase() {
					continue
				}
				if entry.HeadwaySeconds <= 0 {
					f.offsets[pi][ti][e] = 0
					continue
				}
				f.offsets[pi][ti][e] = int32(f.rng.Intn(int(entry.HeadwaySeconds)))
			}
		}
	}
	return f.resolvePhasing()
}

// resolvePhasing iterates the set of phased entries to a fixed point,
// resolving any entry whose source has already been drawn. A full pass
// with no progress indicates a dependency cycle.
func (f *FrequencyOffsets) resolvePhasing() error {
	type pending struct {
		pi, ti, e int
		entry     FrequencyEntry
	}
	var work []pending
	for pi, p := range f.layer.Patterns {
		for ti, t := range p.Trips {
			if !t.IsFrequency {
				continue
			}
			for e, entry := range t.Frequencies {
				if entry.HasPhase() {
					f.offsets[pi][ti][e] = -1
					work = append(work, pending{pi, ti, e, entry})
				}
			}
		}
	}

	for len(work) > 0 {
		progressed := false
		remaining := work[:0]
		for _, w := range work {
			srcPi := w.entry.PhaseFromPattern
			srcTi := w.entry.PhaseFromTrip
			srcE := w.entry.PhaseFromEntry
			if int(srcPi) >= len(f.offsets) || int(srcTi) >= len(f.offsets[srcPi]) || srcE >= len(f.offsets[srcPi][srcTi]) {
				return &InvalidInputError{Reason: "phase source id not found"}
			}
			srcOffset := f.offsets[srcPi][srcTi][srcE]
			if srcOffset == -1 {
				remaining = append(remaining, w)
				continue
			}

			srcTrip := f.layer.Patterns[srcPi].Trips[srcTi]
			srcEntry := srcTrip.Frequencies[srcE]
			srcPos := f.layer.Patterns[srcPi].StopPosition(w.entry.PhaseAtStop)
			dstPos := f.layer.Patterns[w.pi].StopPosition(w.entry.PhaseAtStop)
			if srcPos == -1 || dstPos == -1 {
				return &InvalidInputError{Reason: "phase-at stop not on phase-source or phased pattern"}
			}

			srcDepartAtStop := srcEntry.StartTime + srcOffset + srcTrip.DepartureSeconds[srcPos]
			dstTrip := f.layer.Patterns[w.pi].Trips[w.ti]
			targetDepartAtStop := srcDepartAtStop + w.entry.PhaseSeconds
			candidate := targetDepartAtStop - w.entry.StartTime - dstTrip.DepartureSeconds[dstPos]
			if w.entry.HeadwaySeconds > 0 {
				candidate %= w.entry.HeadwaySeconds
				if candidate < 0 {
					candidate += w.entry.HeadwaySeconds
				}
			} else {
				candidate = 0
			}
			f.offsets[w.pi][w.ti][w.e] = candidate
			progressed = true
		}
		if !progressed && len(remaining) > 0 {
			return &PhasingCycleError{Pattern: PatternIndex(remaining[0].pi)}
		}
		work = remaining
	}
	return nil
}
