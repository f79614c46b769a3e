package metrics

import (
	"github.com/san-kum/restshape/internal/dynamo"
)

// Stability is the fraction of observations in which no DOF carries a force
// or torque above threshold.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(state string, f dynamo.VecDeriv, t float64) {
	s.samples++
	for _, d := range f {
		if d.VCenter.Len() > s.threshold || d.VOrientation.Len() > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
