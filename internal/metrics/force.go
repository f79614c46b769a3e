package metrics

import (
	"math"

	"github.com/san-kum/restshape/internal/dynamo"
)

// MaxForce tracks the largest linear force magnitude seen on any DOF.
type MaxForce struct {
	name string
	max  float64
}

func NewMaxForce() *MaxForce {
	return &MaxForce{name: "max_force"}
}

func (m *MaxForce) Name() string { return m.name }

func (m *MaxForce) Observe(state string, f dynamo.VecDeriv, t float64) {
	for _, d := range f {
		m.max = math.Max(m.max, d.VCenter.Len())
	}
}

func (m *MaxForce) Value() float64 { return m.max }
func (m *MaxForce) Reset()         { m.max = 0 }

// MaxTorque is MaxForce for the rotational part.
type MaxTorque struct {
	name string
	max  float64
}

func NewMaxTorque() *MaxTorque {
	return &MaxTorque{name: "max_torque"}
}

func (m *MaxTorque) Name() string { return m.name }

func (m *MaxTorque) Observe(state string, f dynamo.VecDeriv, t float64) {
	for _, d := range f {
		m.max = math.Max(m.max, d.VOrientation.Len())
	}
}

func (m *MaxTorque) Value() float64 { return m.max }
func (m *MaxTorque) Reset()         { m.max = 0 }

// MeanForce averages the force norm over loaded DOFs.
type MeanForce struct {
	name    string
	sum     float64
	samples int
}

func NewMeanForce() *MeanForce {
	return &MeanForce{name: "mean_force"}
}

func (m *MeanForce) Name() string { return m.name }

func (m *MeanForce) Observe(state string, f dynamo.VecDeriv, t float64) {
	for _, d := range f {
		if d.IsZero() {
			continue
		}
		m.sum += d.Norm()
		m.samples++
	}
}

func (m *MeanForce) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanForce) Reset() {
	m.sum = 0
	m.samples = 0
}

// ActiveDOFs is the largest number of loaded DOFs in one observation.
type ActiveDOFs struct {
	name string
	max  int
}

func NewActiveDOFs() *ActiveDOFs {
	return &ActiveDOFs{name: "active_dofs"}
}

func (a *ActiveDOFs) Name() string { return a.name }

func (a *ActiveDOFs) Observe(state string, f dynamo.VecDeriv, t float64) {
	n := 0
	for _, d := range f {
		if !d.IsZero() {
			n++
		}
	}
	a.max = max(a.max, n)
}

func (a *ActiveDOFs) Value() float64 { return float64(a.max) }
func (a *ActiveDOFs) Reset()         { a.max = 0 }

// Standard returns the metrics the CLI attaches to every run.
func Standard() []dynamo.Metric {
	return []dynamo.Metric{
		NewMaxForce(),
		NewMaxTorque(),
		NewMeanForce(),
		NewActiveDOFs(),
	}
}
