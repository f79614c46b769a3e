package forcefield

import (
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/mstate"
)

const (
	DefaultStiffness        = 1.0
	DefaultAngularStiffness = 1.0
)

// Phase is the lifecycle position of a force field.
type Phase int

const (
	Unconfigured Phase = iota
	Initialized
	PerStepReady
)

func (p Phase) String() string {
	switch p {
	case Unconfigured:
		return "unconfigured"
	case Initialized:
		return "initialized"
	case PerStepReady:
		return "per-step-ready"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// RestShapeSpringForceField pulls DOFs back toward a reference pose with
// linear and angular springs, and adds a constant bias force and torque.
//
// The reference is the state's own rest positions, or the current positions
// of another registered state when the external link resolves.
type RestShapeSpringForceField struct {
	name     string
	mstate   *mstate.MechanicalState
	registry *mstate.Registry
	logger   *log.Logger

	// configuration
	points            []int
	stiffness         []float64
	angularStiffness  []float64
	externalPoints    []int
	biasForce         mgl64.Vec3
	biasTorque        mgl64.Vec3
	recomputeIndices  bool
	restMState        mstate.Link
	rayleighStiffness float64
	unknown           map[string]string

	// derived
	indices         []int
	extIndices      []int
	slots           []int
	k               []float64
	kA              []float64
	matS            blockDiagonal
	lastUpdatedStep float64
	useRestMState   bool
	resolvedSize    int
	resolvedExtSize int

	linkDirty      bool
	indicesDirty   bool
	stiffnessDirty bool
	matrixDirty    bool

	phase    Phase
	reported map[string]struct{}
}

var _ dynamo.ForceField = (*RestShapeSpringForceField)(nil)

type Option func(*RestShapeSpringForceField)

func WithName(name string) Option {
	return func(ff *RestShapeSpringForceField) { ff.name = name }
}

func WithLogger(l *log.Logger) Option {
	return func(ff *RestShapeSpringForceField) { ff.logger = l }
}

// New attaches a force field to ms. The registry resolves the external rest
// shape link and may be nil.
func New(ms *mstate.MechanicalState, reg *mstate.Registry, opts ...Option) *RestShapeSpringForceField {
	ff := &RestShapeSpringForceField{
		name:            "restShapeSpring",
		mstate:          ms,
		registry:        reg,
		restMState:      mstate.NewLink(reg, ""),
		unknown:         make(map[string]string),
		reported:        make(map[string]struct{}),
		lastUpdatedStep: math.Inf(-1),
		linkDirty:       true,
		indicesDirty:    true,
		stiffnessDirty:  true,
		matrixDirty:     true,
	}
	for _, opt := range opts {
		opt(ff)
	}
	if ff.logger == nil {
		ff.logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	}
	ff.logger = ff.logger.WithPrefix(ff.name)
	return ff
}

func (ff *RestShapeSpringForceField) Name() string               { return ff.name }
func (ff *RestShapeSpringForceField) MState() dynamo.State       { return ff.mstate }
func (ff *RestShapeSpringForceField) Phase() Phase               { return ff.phase }
func (ff *RestShapeSpringForceField) UsesRestMState() bool       { return ff.useRestMState }
func (ff *RestShapeSpringForceField) BiasForce() mgl64.Vec3      { return ff.biasForce }
func (ff *RestShapeSpringForceField) BiasTorque() mgl64.Vec3     { return ff.biasTorque }
func (ff *RestShapeSpringForceField) RecomputesIndices() bool    { return ff.recomputeIndices }
func (ff *RestShapeSpringForceField) RayleighStiffness() float64 { return ff.rayleighStiffness }
func (ff *RestShapeSpringForceField) RestStatePath() string      { return ff.restMState.Path() }
func (ff *RestShapeSpringForceField) Unknown() map[string]string { return ff.unknown }
func (ff *RestShapeSpringForceField) LastUpdatedStep() float64   { return ff.lastUpdatedStep }
func (ff *RestShapeSpringForceField) Points() []int              { return ff.points }
func (ff *RestShapeSpringForceField) ExternalPoints() []int      { return ff.externalPoints }
func (ff *RestShapeSpringForceField) StiffnessValues() []float64 { return ff.stiffness }
func (ff *RestShapeSpringForceField) AngularStiffnessValues() []float64 {
	return ff.angularStiffness
}

// Indices returns the resolved local DOF indices.
func (ff *RestShapeSpringForceField) Indices() []int { return ff.indices }

// ExtIndices returns the resolved reference indices, paired with Indices.
func (ff *RestShapeSpringForceField) ExtIndices() []int {
	if ff.useRestMState {
		return ff.extIndices
	}
	return ff.indices
}

// Stiffness returns the per-index linear stiffness, aligned with Indices.
func (ff *RestShapeSpringForceField) Stiffness() []float64 { return ff.k }

// AngularStiffness returns the per-index angular stiffness, aligned with
// Indices.
func (ff *RestShapeSpringForceField) AngularStiffness() []float64 { return ff.kA }

func (ff *RestShapeSpringForceField) SetPoints(points []int) {
	ff.points = append([]int(nil), points...)
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetExternalPoints(points []int) {
	ff.externalPoints = append([]int(nil), points...)
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetStiffness(k []float64) {
	ff.stiffness = append([]float64(nil), k...)
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetAngularStiffness(k []float64) {
	ff.angularStiffness = append([]float64(nil), k...)
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetBias(force, torque mgl64.Vec3) {
	ff.biasForce = force
	ff.biasTorque = torque
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetRecomputeIndices(on bool) {
	ff.recomputeIndices = on
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) SetRayleighStiffness(r float64) {
	ff.rayleighStiffness = r
	ff.invalidate()
}

// SetRestState points the external reference link at path ("@name").
// An empty path selects the state's own rest positions.
func (ff *RestShapeSpringForceField) SetRestState(path string) {
	ff.restMState = mstate.NewLink(ff.registry, path)
	ff.linkDirty = true
	ff.invalidate()
}

func (ff *RestShapeSpringForceField) invalidate() {
	ff.indicesDirty = true
	ff.stiffnessDirty = true
	ff.matrixDirty = true
	ff.reported = make(map[string]struct{})
}

// Init runs the full initialization.
func (ff *RestShapeSpringForceField) Init() { ff.BwdInit() }

// BwdInit resolves the rest shape link and rebuilds every cache.
func (ff *RestShapeSpringForceField) BwdInit() {
	ff.reported = make(map[string]struct{})
	ff.resolveLink()
	ff.RecomputeIndices()
	ff.matrixDirty = true
	ff.lastUpdatedStep = math.Inf(-1)
	ff.phase = Initialized
}

// Reinit is BwdInit after a configuration change.
func (ff *RestShapeSpringForceField) Reinit() { ff.BwdInit() }

func (ff *RestShapeSpringForceField) resolveLink() {
	ff.linkDirty = false
	ff.useRestMState = false
	ext, ok := ff.restMState.Get()
	if !ok {
		return
	}
	if ext.Template() != ff.mstate.Template() {
		ff.report(log.WarnLevel, "rest shape template differs from state, using own rest positions",
			"link", ff.restMState.Path(), "want", ff.mstate.Template(), "got", ext.Template())
		return
	}
	ff.useRestMState = true
}

// restState returns the linked reference state while it is still in use and
// registered.
func (ff *RestShapeSpringForceField) restState() (*mstate.MechanicalState, bool) {
	if !ff.useRestMState {
		return nil, false
	}
	return ff.restMState.Get()
}

// ExtPosition returns the reference coordinates indexed by ExtIndices.
func (ff *RestShapeSpringForceField) ExtPosition() dynamo.VecCoord {
	if ext, ok := ff.restState(); ok {
		return ext.Positions()
	}
	return ff.mstate.RestPositions()
}

func (ff *RestShapeSpringForceField) extSize() int {
	return len(ff.ExtPosition())
}

// refresh brings the caches up to date before an evaluation. perStep is
// set by AddForce only: that is where recompute_indices applies.
func (ff *RestShapeSpringForceField) refresh(perStep bool) {
	if ff.phase == Unconfigured {
		ff.BwdInit()
		return
	}
	if ff.useRestMState {
		if _, ok := ff.restMState.Get(); !ok {
			ff.useRestMState = false
			ff.indicesDirty = true
		}
	}
	if ff.linkDirty {
		ff.resolveLink()
		ff.indicesDirty = true
	}
	if ff.resolvedSize != ff.mstate.Size() || ff.resolvedExtSize != ff.extSize() {
		ff.indicesDirty = true
	}
	if ff.indicesDirty || (perStep && ff.recomputeIndices) {
		ff.RecomputeIndices()
	} else if ff.stiffnessDirty {
		ff.updateStiffness()
	}
}

// report logs msg once until the next configuration change.
func (ff *RestShapeSpringForceField) report(level log.Level, msg string, keyvals ...interface{}) {
	key := fmt.Sprint(level, msg, keyvals)
	if _, seen := ff.reported[key]; seen {
		return
	}
	ff.reported[key] = struct{}{}
	ff.logger.Log(level, msg, keyvals...)
}
