package raptor

// PatternPrefilter holds, for one (date, mode-set) request, the bitsets
// of pattern indices that qualify to run at all: servicesActive
// intersects the request's active services and the pattern's route mode
// is requested. Downstream scans only ever look at these two bitsets.
type PatternPrefilter struct {
	RunningScheduled  *BitSet
	RunningFrequency  *BitSet
}

// BuildPatternPrefilter iterates every pattern once, ~3% of the
// engine's total work per the design budget.
func BuildPatternPrefilter(layer *TransitLayer, servicesActive *BitSet, modes map[string]bool) *PatternPrefilter {
	n := len(layer.Patterns)
	pf := &PatternPrefilter{
		RunningScheduled: NewBitSet(n),
		RunningFrequency: NewBitSet(n),
	}
	for i, p := range layer.Patterns {
		if !modes[p.RouteMode] {
			continue
		}
		if !bitsetsIntersect(p.ServicesActive, servicesActive) {
			continue
		}
		if p.HasSchedules {
			pf.RunningScheduled.Set(i)
		}
		if p.HasFrequencies {
			pf.RunningFrequency.Set(i)
		}
	}
	return pf
}

func bitsetsIntersect(a, b *BitSet) bool {
	n := len(a.words)
	if len(b.words) < n {
		n = len(b.words)
	}
	for i := 0; i < n; i++ {
		if a.words[i]&b.words[i] != 0 {
			return true
		}
	}
	return false
}
