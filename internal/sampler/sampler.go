package sampler

import "FlowForge/internal/model"

// Systematic implements the deterministic n:1 selection real exporters use:
// one flow out of every rate observed flows, counter based. The ratio is
// exact, not merely expected, which keeps downstream report accounting
// testable. Not safe for concurrent use; the pipeline has a single sampling
// point.
type Systematic struct {
	rate     uint64
	observed uint64
	selected uint64
}

// New creates a sampler with the given n:1 rate. A rate of 1 selects every
// flow.
func New(rate int) *Systematic {
	if rate < 1 {
		rate = 1
	}
	return &Systematic{rate: uint64(rate)}
}

// Sample records one observed flow and decides whether it is exported.
// Every rate-th flow is selected, so a run of N flows selects exactly
// floor(N/rate).
func (s *Systematic) Sample() model.SamplingDecision {
	s.observed++
	if s.rate == 1 {
		s.selected++
		return true
	}
	if s.observed%s.rate == 0 {
		s.selected++
		return true
	}
	return false
}

// Observed returns the number of flows seen since run start.
func (s *Systematic) Observed() uint64 { return s.observed }

// Selected returns the number of flows chosen for export.
func (s *Systematic) Selected() uint64 { return s.selected }
