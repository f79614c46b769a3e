package dynamo

import (
	"fmt"
	"math"
	"strings"

	"github.com/cpmech/gosl/la"
	"github.com/go-gl/mathgl/mgl64"
)

// Template tags the kind of coordinate a mechanical state carries.
type Template int

const (
	// Vec3d is a plain 3-D point (deformable bodies).
	Vec3d Template = iota
	// Rigid3d is a 3-D frame: center plus orientation.
	Rigid3d
)

func (t Template) String() string {
	switch t {
	case Vec3d:
		return "Vec3d"
	case Rigid3d:
		return "Rigid3d"
	default:
		return fmt.Sprintf("Template(%d)", int(t))
	}
}

func ParseTemplate(name string) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vec3", "vec3d", "":
		return Vec3d, nil
	case "rigid", "rigid3", "rigid3d":
		return Rigid3d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

// BlockSize is the number of scalar unknowns per DOF in the system matrix.
func (t Template) BlockSize() int {
	if t.HasOrientation() {
		return 6
	}
	return 3
}

// HasOrientation reports whether coordinates of this template carry a
// rotational part. Angular springs only act on such templates.
func (t Template) HasOrientation() bool { return t == Rigid3d }

type Coord struct {
	Center      mgl64.Vec3
	Orientation mgl64.Quat
}

func NewCoord(x, y, z float64) Coord {
	return Coord{Center: mgl64.Vec3{x, y, z}, Orientation: mgl64.QuatIdent()}
}

func (c Coord) IsValid() bool {
	vals := [7]float64{c.Center[0], c.Center[1], c.Center[2], c.Orientation.W, c.Orientation.V[0], c.Orientation.V[1], c.Orientation.V[2]}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Deriv is a per-DOF tangent value: force, velocity or displacement.
type Deriv struct {
	VCenter      mgl64.Vec3
	VOrientation mgl64.Vec3
}

func (d Deriv) IsZero() bool {
	return d.VCenter == (mgl64.Vec3{}) && d.VOrientation == (mgl64.Vec3{})
}

func (d Deriv) Norm() float64 {
	return math.Sqrt(d.VCenter.Dot(d.VCenter) + d.VOrientation.Dot(d.VOrientation))
}

type VecCoord []Coord

func (v VecCoord) Clone() VecCoord {
	c := make(VecCoord, len(v))
	copy(c, v)
	return c
}

type VecDeriv []Deriv

func (v VecDeriv) Clone() VecDeriv {
	c := make(VecDeriv, len(v))
	copy(c, v)
	return c
}

func (v VecDeriv) Reset() {
	for i := range v {
		v[i] = Deriv{}
	}
}

// State is the read side of a mechanical state as seen by force fields.
// Returned slices alias the state's buffers.
type State interface {
	Name() string
	Size() int
	Template() Template
	Positions() VecCoord
	Velocities() VecDeriv
	RestPositions() VecCoord
}

// MechanicalParams carries the factors of the current linear system
// (M*mFactor + B*bFactor + K*kFactor) and the simulation clock.
type MechanicalParams struct {
	Time    float64
	Dt      float64
	MFactor float64
	BFactor float64
	KFactor float64
}

func DefaultMechanicalParams() MechanicalParams {
	return MechanicalParams{
		Dt:      0.01,
		KFactor: 1.0,
	}
}

// KFactorIncludingRayleighDamping folds Rayleigh stiffness damping into the
// stiffness factor.
func (p MechanicalParams) KFactorIncludingRayleighDamping(rayleighStiffness float64) float64 {
	return p.KFactor + rayleighStiffness*p.BFactor
}

// MatrixRef locates a state's block in the global matrix. A nil Matrix means
// the state does not take part in the current system.
type MatrixRef struct {
	Matrix *la.Triplet
	Offset int
}

type MatrixAccessor interface {
	Matrix(s State) MatrixRef
}

type ForceField interface {
	Name() string
	MState() State
	Init()
	BwdInit()
	Reinit()
	AddForce(mp MechanicalParams, f VecDeriv, x VecCoord, v VecDeriv)
	AddDForce(mp MechanicalParams, df VecDeriv, dx VecDeriv)
	AddKToMatrix(mp MechanicalParams, m MatrixAccessor)
	PotentialEnergy(mp MechanicalParams, x VecCoord) float64
}

type Metric interface {
	Name() string
	Observe(state string, f VecDeriv, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnFrame(frame int, t float64, forces map[string]VecDeriv)
}
