package sim

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/assembly"
	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/forcefield"
	"github.com/san-kum/restshape/internal/mstate"
)

// Scene owns the mechanical states, the force fields acting on them and the
// global matrix they assemble into.
type Scene struct {
	Name        string
	Registry    *mstate.Registry
	States      []*mstate.MechanicalState
	ForceFields []*forcefield.RestShapeSpringForceField
	Accessor    *assembly.MultiMatrixAccessor

	forces   map[string]dynamo.VecDeriv
	capacity int
	logger   *log.Logger
}

// BuildScene creates and initializes every state and force field of cfg.
// Malformed force-field attributes are logged and skipped; structural
// problems are returned.
func BuildScene(cfg *config.Config, logger *log.Logger) (*Scene, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scene{
		Name:     cfg.Name,
		Registry: mstate.NewRegistry(),
		Accessor: assembly.New(),
		forces:   make(map[string]dynamo.VecDeriv),
		logger:   logger,
	}

	for _, sc := range cfg.States {
		ms, err := buildState(sc)
		if err != nil {
			return nil, err
		}
		if err := s.Registry.Register(ms); err != nil {
			return nil, err
		}
		s.States = append(s.States, ms)
		s.Accessor.AddState(ms)
		s.forces[ms.Name()] = make(dynamo.VecDeriv, ms.Size())
	}

	for i, fc := range cfg.ForceFields {
		ms, err := s.Registry.Get(fc.State)
		if err != nil {
			return nil, fmt.Errorf("forcefield %d: %w", i, err)
		}
		desc := fc.Description()
		opts := []forcefield.Option{forcefield.WithLogger(logger)}
		if desc.Name != "" {
			opts = append(opts, forcefield.WithName(desc.Name))
		}
		ff := forcefield.New(ms, s.Registry, opts...)
		if err := ff.Parse(desc); err != nil {
			logger.Warn("invalid forcefield attributes", "forcefield", ff.Name(), "err", err)
		}
		ff.Init()
		s.ForceFields = append(s.ForceFields, ff)
	}

	s.setup()
	return s, nil
}

func buildState(sc config.StateConfig) (*mstate.MechanicalState, error) {
	template, err := dynamo.ParseTemplate(sc.Template)
	if err != nil {
		return nil, fmt.Errorf("state %q: %w", sc.Name, err)
	}

	n := sc.StateSize()
	x := make(dynamo.VecCoord, n)
	for i := range x {
		x[i] = dynamo.NewCoord(float64(i), 0, 0)
	}
	applyTuples(x, sc.Positions, sc.Orientations)

	x0 := x.Clone()
	applyTuples(x0, sc.RestPositions, sc.RestOrientations)

	ms := mstate.NewFromPositions(sc.Name, template, x)
	if err := ms.SetRestPositions(x0); err != nil {
		return nil, err
	}
	if err := ms.Validate(); err != nil {
		return nil, err
	}
	return ms, nil
}

// applyTuples overwrites the leading coordinates with positions (x y z) and
// orientations (w x y z).
func applyTuples(x dynamo.VecCoord, positions, orientations [][]float64) {
	for i, p := range positions {
		if i < len(x) {
			x[i].Center = mgl64.Vec3{p[0], p[1], p[2]}
		}
	}
	for i, q := range orientations {
		if i < len(x) {
			x[i].Orientation = mgl64.Quat{W: q[0], V: mgl64.Vec3{q[1], q[2], q[3]}}.Normalize()
		}
	}
}

// setup lays the states out again when one changed size, and grows the
// matrix to hold every force field's entries.
func (s *Scene) setup() {
	for _, ms := range s.States {
		if !s.Accessor.Fits(ms) {
			states := make([]dynamo.State, len(s.States))
			for i, st := range s.States {
				states[i] = st
			}
			s.Accessor.Layout(states...)
			s.capacity = 0
			break
		}
	}

	need := 0
	for _, ff := range s.ForceFields {
		need += ff.MatrixEntries()
	}
	if need > s.capacity || s.Accessor.Global() == nil {
		s.capacity = need
		s.Accessor.Setup(need)
	}
}

func (s *Scene) State(name string) (*mstate.MechanicalState, error) {
	return s.Registry.Get(name)
}

// Reset puts every state back at rest and clears force masks.
func (s *Scene) Reset() {
	for _, ms := range s.States {
		ms.Reset()
		ms.ForceMask().Clear()
	}
}

// Displace applies d on top of the DOF's rest pose.
func (s *Scene) Displace(d Displacement) error {
	ms, err := s.Registry.Get(d.State)
	if err != nil {
		return err
	}
	if d.DOF < 0 || d.DOF >= ms.Size() {
		return fmt.Errorf("%w: %s dof %d outside [0,%d)", dynamo.ErrDimensionMismatch, d.State, d.DOF, ms.Size())
	}

	c := ms.RestPositions()[d.DOF]
	c.Center = c.Center.Add(d.Translation)
	if d.Angle != 0 && d.Axis.Len() > 0 {
		if ms.Template().HasOrientation() {
			c.Orientation = mgl64.QuatRotate(d.Angle, d.Axis.Normalize()).Mul(c.Orientation).Normalize()
		} else {
			s.logger.Debug("rotation ignored on point template", "state", d.State, "dof", d.DOF)
		}
	}
	ms.SetPosition(d.DOF, c)
	return nil
}

// Params builds the mechanical parameters of one evaluation.
func (s *Scene) Params(cfg Config, t float64) dynamo.MechanicalParams {
	return dynamo.MechanicalParams{
		Time:    t,
		Dt:      cfg.Dt,
		KFactor: cfg.KFactor,
		BFactor: cfg.BFactor,
	}
}

// Evaluate accumulates every force field's forces and stiffness at the
// current positions. The returned forces are copies; the diagonal is that of
// the assembled global matrix.
func (s *Scene) Evaluate(mp dynamo.MechanicalParams) (map[string]dynamo.VecDeriv, []float64) {
	for _, ms := range s.States {
		f := s.forces[ms.Name()]
		if len(f) != ms.Size() {
			f = make(dynamo.VecDeriv, ms.Size())
			s.forces[ms.Name()] = f
		}
		f.Reset()
	}
	for _, ff := range s.ForceFields {
		ms := ff.MState()
		ff.AddForce(mp, s.forces[ms.Name()], ms.Positions(), ms.Velocities())
	}

	s.setup()
	s.Accessor.Start()
	for _, ff := range s.ForceFields {
		ff.AddKToMatrix(mp, s.Accessor)
	}

	out := make(map[string]dynamo.VecDeriv, len(s.forces))
	for name, f := range s.forces {
		out[name] = f.Clone()
	}
	return out, s.Accessor.Diagonal()
}
