package mstate

import (
	"fmt"

	"github.com/san-kum/restshape/internal/dynamo"
)

// MechanicalState owns the DOF buffers of one body: current positions and
// velocities, rest positions, and the force mask.
type MechanicalState struct {
	name     string
	template dynamo.Template
	x        dynamo.VecCoord
	v        dynamo.VecDeriv
	x0       dynamo.VecCoord
	mask     *ForceMask
}

// New creates n DOFs at the origin with identity orientation. Rest positions
// start equal to positions.
func New(name string, template dynamo.Template, n int) *MechanicalState {
	x := make(dynamo.VecCoord, n)
	for i := range x {
		x[i] = dynamo.NewCoord(0, 0, 0)
	}
	return &MechanicalState{
		name:     name,
		template: template,
		x:        x,
		v:        make(dynamo.VecDeriv, n),
		x0:       x.Clone(),
		mask:     NewForceMask(n),
	}
}

// NewFromPositions uses x as both current and rest positions.
func NewFromPositions(name string, template dynamo.Template, x dynamo.VecCoord) *MechanicalState {
	ms := New(name, template, len(x))
	copy(ms.x, x)
	copy(ms.x0, x)
	return ms
}

func (m *MechanicalState) Name() string                      { return m.name }
func (m *MechanicalState) Size() int                         { return len(m.x) }
func (m *MechanicalState) Template() dynamo.Template         { return m.template }
func (m *MechanicalState) Positions() dynamo.VecCoord        { return m.x }
func (m *MechanicalState) Velocities() dynamo.VecDeriv       { return m.v }
func (m *MechanicalState) RestPositions() dynamo.VecCoord    { return m.x0 }
func (m *MechanicalState) ForceMask() *ForceMask             { return m.mask }
func (m *MechanicalState) SetPosition(i int, c dynamo.Coord) { m.x[i] = c }

// SetPositions overwrites the current positions.
func (m *MechanicalState) SetPositions(x dynamo.VecCoord) error {
	if len(x) != len(m.x) {
		return fmt.Errorf("%w: %s has %d DOFs, got %d", dynamo.ErrDimensionMismatch, m.name, len(m.x), len(x))
	}
	copy(m.x, x)
	return nil
}

func (m *MechanicalState) SetRestPositions(x0 dynamo.VecCoord) error {
	if len(x0) != len(m.x0) {
		return fmt.Errorf("%w: %s has %d DOFs, got %d", dynamo.ErrDimensionMismatch, m.name, len(m.x0), len(x0))
	}
	copy(m.x0, x0)
	return nil
}

// Resize changes the DOF count. New DOFs start at the origin; existing
// entries are kept.
func (m *MechanicalState) Resize(n int) {
	grow := func(c dynamo.VecCoord) dynamo.VecCoord {
		out := make(dynamo.VecCoord, n)
		copy(out, c)
		for i := len(c); i < n; i++ {
			out[i] = dynamo.NewCoord(0, 0, 0)
		}
		return out
	}
	m.x = grow(m.x)
	m.x0 = grow(m.x0)
	v := make(dynamo.VecDeriv, n)
	copy(v, m.v)
	m.v = v
	m.mask.Resize(n)
}

// Reset puts every DOF back at its rest position with zero velocity.
func (m *MechanicalState) Reset() {
	copy(m.x, m.x0)
	m.v.Reset()
}

// Validate reports the first DOF with a non-finite coordinate.
func (m *MechanicalState) Validate() error {
	for i, c := range m.x {
		if !c.IsValid() {
			return fmt.Errorf("%w: %s dof %d", dynamo.ErrInvalidState, m.name, i)
		}
	}
	return nil
}
