package forcefield_test

import (
	"bytes"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/restshape/internal/assembly"
	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/forcefield"
	"github.com/san-kum/restshape/internal/mstate"
)

func lineState(name string, t dynamo.Template, n int) *mstate.MechanicalState {
	x := make(dynamo.VecCoord, n)
	for i := range x {
		x[i] = dynamo.NewCoord(float64(i), 0, 0)
	}
	return mstate.NewFromPositions(name, t, x)
}

func translate(ms *mstate.MechanicalState, i int, d mgl64.Vec3) {
	c := ms.Positions()[i]
	c.Center = c.Center.Add(d)
	ms.SetPosition(i, c)
}

func rotate(ms *mstate.MechanicalState, i int, angle float64, axis mgl64.Vec3) {
	c := ms.Positions()[i]
	c.Orientation = mgl64.QuatRotate(angle, axis).Mul(c.Orientation)
	ms.SetPosition(i, c)
}

var _ = Describe("RestShapeSpringForceField", func() {
	var (
		logs   *bytes.Buffer
		logger *log.Logger
		reg    *mstate.Registry
		ms     *mstate.MechanicalState
		ff     *forcefield.RestShapeSpringForceField
		mp     dynamo.MechanicalParams
	)

	evaluate := func() dynamo.VecDeriv {
		f := make(dynamo.VecDeriv, ms.Size())
		ff.AddForce(mp, f, ms.Positions(), ms.Velocities())
		return f
	}

	assemble := func(mp dynamo.MechanicalParams, states ...*mstate.MechanicalState) *assembly.MultiMatrixAccessor {
		acc := assembly.New()
		for _, s := range states {
			acc.AddState(s)
		}
		acc.Setup(acc.Size())
		ff.AddKToMatrix(mp, acc)
		return acc
	}

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		logger = log.NewWithOptions(logs, log.Options{Level: log.DebugLevel})
		reg = mstate.NewRegistry()
		ms = lineState("body", dynamo.Vec3d, 8)
		Expect(reg.Register(ms)).To(Succeed())
		ff = forcefield.New(ms, reg, forcefield.WithLogger(logger))
		mp = dynamo.DefaultMechanicalParams()
	})

	Describe("index resolution", func() {
		It("covers every DOF when points is empty", func() {
			ff.BwdInit()
			Expect(ff.Indices()).To(Equal([]int{0, 1, 2, 3, 4, 5, 6, 7}))
			Expect(ff.ExtIndices()).To(Equal(ff.Indices()))
		})

		It("uses the explicit points list", func() {
			ff.SetPoints([]int{2, 5})
			ff.BwdInit()
			Expect(ff.Indices()).To(Equal([]int{2, 5}))
		})

		It("drops and reports out-of-range and duplicate indices", func() {
			ff.SetPoints([]int{1, 9, -1, 1, 3})
			ff.BwdInit()
			Expect(ff.Indices()).To(Equal([]int{1, 3}))
			Expect(logs.String()).To(ContainSubstring("out of range"))
			Expect(logs.String()).To(ContainSubstring("duplicate"))
		})

		It("is idempotent", func() {
			ff.SetPoints([]int{4, 0, 6})
			ff.SetStiffness([]float64{1, 2, 3})
			ff.BwdInit()
			indices := append([]int(nil), ff.Indices()...)
			k := append([]float64(nil), ff.Stiffness()...)

			ff.RecomputeIndices()
			Expect(ff.Indices()).To(Equal(indices))
			Expect(ff.Stiffness()).To(Equal(k))
		})

		It("reflects a new points list after reinit", func() {
			ff.SetPoints([]int{1, 2})
			ff.BwdInit()
			ff.SetPoints([]int{6})
			ff.Reinit()
			Expect(ff.Indices()).To(Equal([]int{6}))
		})

		It("follows DOF count changes when recomputing every step", func() {
			ff.SetRecomputeIndices(true)
			ff.BwdInit()
			ms.Resize(10)
			evaluate()
			Expect(ff.Indices()).To(HaveLen(10))
		})
	})

	Describe("stiffness broadcast", func() {
		BeforeEach(func() {
			ff.SetPoints([]int{1, 3, 5})
		})

		It("broadcasts a single value", func() {
			ff.SetStiffness([]float64{7})
			ff.BwdInit()
			Expect(ff.Stiffness()).To(Equal([]float64{7, 7, 7}))
		})

		It("applies the default when empty", func() {
			ff.BwdInit()
			Expect(ff.Stiffness()).To(Equal([]float64{1, 1, 1}))
			Expect(ff.AngularStiffness()).To(Equal([]float64{1, 1, 1}))
		})

		It("keeps per-point values aligned with points", func() {
			ff.SetPoints([]int{1, 30, 5})
			ff.SetStiffness([]float64{10, 20, 30})
			ff.BwdInit()
			Expect(ff.Indices()).To(Equal([]int{1, 5}))
			Expect(ff.Stiffness()).To(Equal([]float64{10, 30}))
		})

		It("reports a size mismatch and broadcasts the first value", func() {
			ff.SetStiffness([]float64{4, 5})
			ff.BwdInit()
			Expect(ff.Stiffness()).To(Equal([]float64{4, 4, 4}))
			Expect(logs.String()).To(ContainSubstring("stiffness size does not match"))
		})
	})

	Describe("AddForce", func() {
		It("pulls a displaced DOF back to rest and leaves the others alone", func() {
			ff.SetPoints([]int{2, 5})
			ff.SetStiffness([]float64{10})
			ff.BwdInit()
			translate(ms, 2, mgl64.Vec3{1, 0, 0})

			f := evaluate()
			Expect(f[2].VCenter).To(Equal(mgl64.Vec3{-10, 0, 0}))
			Expect(f[5].VCenter).To(Equal(mgl64.Vec3{0, 0, 0}))
			for i := range f {
				if i != 2 {
					Expect(f[i].IsZero()).To(BeTrue(), "dof %d", i)
				}
			}
		})

		It("gives zero force at rest", func() {
			ff.SetStiffness([]float64{3})
			ff.BwdInit()
			for _, d := range evaluate() {
				Expect(d.VCenter).To(Equal(mgl64.Vec3{}))
			}
		})

		It("accumulates into existing forces", func() {
			ff.SetPoints([]int{0})
			ff.SetStiffness([]float64{2})
			ff.BwdInit()
			translate(ms, 0, mgl64.Vec3{0, 1, 0})

			f := make(dynamo.VecDeriv, ms.Size())
			f[0].VCenter = mgl64.Vec3{1, 1, 1}
			ff.AddForce(mp, f, ms.Positions(), ms.Velocities())
			Expect(f[0].VCenter).To(Equal(mgl64.Vec3{1, -1, 1}))
		})

		It("marks resolved DOFs in the force mask", func() {
			ff.SetPoints([]int{3, 4})
			ff.BwdInit()
			evaluate()
			Expect(ms.ForceMask().Indices()).To(Equal([]int{3, 4}))
		})

		It("skips short output buffers without panicking", func() {
			ff.BwdInit()
			f := make(dynamo.VecDeriv, 2)
			Expect(func() { ff.AddForce(mp, f, ms.Positions(), ms.Velocities()) }).NotTo(Panic())
			Expect(f[0].IsZero()).To(BeTrue())
			Expect(logs.String()).To(ContainSubstring("shorter than state"))
		})

		Context("on rigid frames", func() {
			BeforeEach(func() {
				reg = mstate.NewRegistry()
				ms = lineState("frames", dynamo.Rigid3d, 4)
				Expect(reg.Register(ms)).To(Succeed())
				ff = forcefield.New(ms, reg, forcefield.WithLogger(logger))
			})

			It("applies bias force and torque only to resolved DOFs", func() {
				ff.SetPoints([]int{1, 3})
				ff.SetStiffness([]float64{0})
				ff.SetAngularStiffness([]float64{0})
				ff.SetBias(mgl64.Vec3{0, -9.81, 0}, mgl64.Vec3{0, 0, 0.5})
				ff.BwdInit()

				f := evaluate()
				for _, i := range []int{1, 3} {
					Expect(f[i].VCenter).To(Equal(mgl64.Vec3{0, -9.81, 0}))
					Expect(f[i].VOrientation).To(Equal(mgl64.Vec3{0, 0, 0.5}))
				}
				Expect(f[0].IsZero()).To(BeTrue())
				Expect(f[2].IsZero()).To(BeTrue())
			})

			It("returns a torque toward the rest orientation", func() {
				ff.SetPoints([]int{2})
				ff.SetAngularStiffness([]float64{5})
				ff.BwdInit()
				rotate(ms, 2, math.Pi/2, mgl64.Vec3{0, 0, 1})

				f := evaluate()
				Expect(f[2].VCenter).To(Equal(mgl64.Vec3{}))
				Expect(f[2].VOrientation[0]).To(BeNumerically("~", 0, 1e-12))
				Expect(f[2].VOrientation[1]).To(BeNumerically("~", 0, 1e-12))
				Expect(f[2].VOrientation[2]).To(BeNumerically("~", -5*math.Pi/2, 1e-9))
			})

			It("does not apply torque on point templates", func() {
				points := lineState("points", dynamo.Vec3d, 2)
				pff := forcefield.New(points, nil, forcefield.WithLogger(logger))
				pff.SetBias(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 0, 1})
				pff.BwdInit()
				f := make(dynamo.VecDeriv, 2)
				pff.AddForce(mp, f, points.Positions(), points.Velocities())
				Expect(f[0].VOrientation).To(Equal(mgl64.Vec3{}))
				Expect(f[0].VCenter).To(Equal(mgl64.Vec3{1, 0, 0}))
			})
		})
	})

	Describe("external rest state", func() {
		var target *mstate.MechanicalState

		BeforeEach(func() {
			target = mstate.NewFromPositions("target", dynamo.Vec3d, dynamo.VecCoord{
				dynamo.NewCoord(0, 1, 0), dynamo.NewCoord(1, 1, 0), dynamo.NewCoord(2, 1, 0),
			})
			Expect(reg.Register(target)).To(Succeed())
			ff.SetRestState("@target")
		})

		It("pulls toward the linked state's positions", func() {
			ff.SetPoints([]int{0, 1})
			ff.SetExternalPoints([]int{2, 0})
			ff.SetStiffness([]float64{2})
			ff.BwdInit()

			Expect(ff.UsesRestMState()).To(BeTrue())
			Expect(ff.ExtIndices()).To(Equal([]int{2, 0}))

			f := evaluate()
			Expect(f[0].VCenter).To(Equal(mgl64.Vec3{4, 2, 0}))
			Expect(f[1].VCenter).To(Equal(mgl64.Vec3{-2, 2, 0}))
		})

		It("truncates mismatched index lists without failing", func() {
			ff.SetPoints([]int{0, 1, 2})
			ff.SetExternalPoints([]int{1, 2})
			Expect(ff.BwdInit).NotTo(Panic())

			Expect(ff.Indices()).To(Equal([]int{0, 1}))
			Expect(ff.ExtIndices()).To(Equal([]int{1, 2}))
			Expect(logs.String()).To(ContainSubstring("differ in size"))
		})

		It("drops pairs whose reference index is out of range", func() {
			ff.SetPoints([]int{0, 1})
			ff.SetExternalPoints([]int{7, 1})
			ff.BwdInit()
			Expect(ff.Indices()).To(Equal([]int{1}))
			Expect(ff.ExtIndices()).To(Equal([]int{1}))
		})

		It("falls back to own rest positions when the link disappears", func() {
			ff.SetPoints([]int{1})
			ff.SetExternalPoints([]int{2})
			ff.BwdInit()
			Expect(ff.UsesRestMState()).To(BeTrue())

			reg.Remove("target")
			f := evaluate()
			Expect(ff.UsesRestMState()).To(BeFalse())
			Expect(ff.ExtIndices()).To(Equal([]int{1}))
			Expect(f[1].IsZero()).To(BeTrue())
		})

		It("silently uses own rest positions for an unresolved link", func() {
			ff.SetRestState("@nowhere")
			ff.BwdInit()
			Expect(ff.UsesRestMState()).To(BeFalse())
			Expect(logs.String()).To(BeEmpty())
		})

		It("ignores a linked state of another template", func() {
			Expect(reg.Register(lineState("frames", dynamo.Rigid3d, 8))).To(Succeed())
			ff.SetRestState("@frames")
			ff.BwdInit()
			Expect(ff.UsesRestMState()).To(BeFalse())
			Expect(logs.String()).To(ContainSubstring("template differs"))
		})
	})

	Describe("AddDForce", func() {
		It("opposes the displacement scaled by kFactor", func() {
			ff.SetPoints([]int{1})
			ff.SetStiffness([]float64{10})
			ff.SetRayleighStiffness(0.5)
			ff.BwdInit()

			mp.KFactor = 0.2
			mp.BFactor = 0.4
			dx := make(dynamo.VecDeriv, ms.Size())
			dx[1].VCenter = mgl64.Vec3{1, 2, 0}
			dx[2].VCenter = mgl64.Vec3{1, 1, 1}
			df := make(dynamo.VecDeriv, ms.Size())
			ff.AddDForce(mp, df, dx)

			// kFactor = 0.2 + 0.5*0.4
			Expect(df[1].VCenter[0]).To(BeNumerically("~", -4, 1e-12))
			Expect(df[1].VCenter[1]).To(BeNumerically("~", -8, 1e-12))
			Expect(df[2].IsZero()).To(BeTrue())
		})

		It("uses angular stiffness on rigid frames", func() {
			frames := lineState("frames", dynamo.Rigid3d, 2)
			rff := forcefield.New(frames, nil, forcefield.WithLogger(logger))
			rff.SetAngularStiffness([]float64{3})
			rff.BwdInit()

			dx := make(dynamo.VecDeriv, 2)
			dx[0].VOrientation = mgl64.Vec3{0, 0, 1}
			df := make(dynamo.VecDeriv, 2)
			rff.AddDForce(mp, df, dx)
			Expect(df[0].VOrientation).To(Equal(mgl64.Vec3{0, 0, -3}))
		})
	})

	Describe("AddKToMatrix", func() {
		It("writes -k on the diagonal block of each resolved DOF only", func() {
			ff.SetPoints([]int{2, 5})
			ff.SetStiffness([]float64{10})
			ff.BwdInit()
			mp.KFactor = 0.5

			dense := assemble(mp, ms).Dense()
			n := ms.Size() * 3
			for r := 0; r < n; r++ {
				for c := 0; c < n; c++ {
					want := 0.0
					if r == c && (r/3 == 2 || r/3 == 5) {
						want = -5.0
					}
					Expect(dense.Get(r, c)).To(Equal(want), "entry (%d,%d)", r, c)
				}
			}
		})

		It("writes -kA on the rotational rows of rigid frames", func() {
			frames := lineState("frames", dynamo.Rigid3d, 2)
			ff = forcefield.New(frames, nil, forcefield.WithLogger(logger))
			ff.SetPoints([]int{1})
			ff.SetStiffness([]float64{4})
			ff.SetAngularStiffness([]float64{2})
			ff.BwdInit()

			diag := assemble(mp, frames).Diagonal()
			Expect(diag).To(Equal([]float64{0, 0, 0, 0, 0, 0, -4, -4, -4, -2, -2, -2}))
		})

		It("places each state at its accessor offset", func() {
			other := lineState("other", dynamo.Vec3d, 2)
			ff.SetPoints([]int{0})
			ff.BwdInit()

			acc := assembly.New()
			acc.AddState(other)
			acc.AddState(ms)
			acc.Setup(16)
			ff.AddKToMatrix(mp, acc)

			diag := acc.Diagonal()
			Expect(diag[:6]).To(Equal([]float64{0, 0, 0, 0, 0, 0}))
			Expect(diag[6:9]).To(Equal([]float64{-1, -1, -1}))
		})

		It("tolerates a missing accessor or matrix", func() {
			ff.BwdInit()
			Expect(func() { ff.AddKToMatrix(mp, nil) }).NotTo(Panic())
			Expect(func() { ff.AddKToMatrix(mp, assembly.New()) }).NotTo(Panic())
			var acc *assembly.MultiMatrixAccessor
			Expect(func() { ff.AddKToMatrix(mp, acc) }).NotTo(Panic())
		})

		It("clears entries of removed indices on the next rebuild", func() {
			ff.SetPoints([]int{1, 4})
			ff.BwdInit()
			Expect(assemble(mp, ms).Diagonal()[3]).To(Equal(-1.0))

			ff.SetPoints([]int{4})
			ff.Reinit()
			diag := assemble(mp, ms).Diagonal()
			Expect(diag[3]).To(Equal(0.0))
			Expect(diag[12]).To(Equal(-1.0))
		})

		It("drops removed entries from an accessor reused across assemblies", func() {
			ff.SetPoints([]int{1, 4})
			ff.BwdInit()

			acc := assembly.New()
			acc.AddState(ms)
			acc.Setup(ff.MatrixEntries())
			ff.AddKToMatrix(mp, acc)
			Expect(acc.Diagonal()[3]).To(Equal(-1.0))

			ff.SetPoints([]int{4})
			Expect(ff.MatrixEntries()).To(Equal(3))
			acc.Start()
			ff.AddKToMatrix(mp, acc)
			diag := acc.Diagonal()
			Expect(diag[3]).To(Equal(0.0))
			Expect(diag[12]).To(Equal(-1.0))
		})

		It("rebuilds after a configuration change without reinit", func() {
			ff.SetPoints([]int{0})
			ff.BwdInit()
			assemble(mp, ms)
			ff.SetStiffness([]float64{6})
			Expect(assemble(mp, ms).Diagonal()[0]).To(Equal(-6.0))
		})

		It("reuses the cached matrix within and across steps", func() {
			ff.SetPoints([]int{0})
			ff.BwdInit()
			mp.Time = 0
			assemble(mp, ms)
			Expect(ff.LastUpdatedStep()).To(Equal(0.0))

			mp.Time = 0.01
			assemble(mp, ms)
			Expect(ff.LastUpdatedStep()).To(Equal(0.0))

			ff.SetRecomputeIndices(true)
			ff.BwdInit()
			assemble(mp, ms)
			mp.Time = 0.02
			assemble(mp, ms)
			Expect(ff.LastUpdatedStep()).To(Equal(0.02))
		})
	})

	Describe("PotentialEnergy", func() {
		It("reports an error and returns zero", func() {
			ff.BwdInit()
			Expect(ff.PotentialEnergy(mp, ms.Positions())).To(Equal(0.0))
			Expect(logs.String()).To(ContainSubstring("potential energy not implemented"))
		})

		It("reports the error once until reinit", func() {
			ff.BwdInit()
			ff.PotentialEnergy(mp, ms.Positions())
			ff.PotentialEnergy(mp, ms.Positions())
			Expect(strings.Count(logs.String(), "potential energy not implemented")).To(Equal(1))

			ff.Reinit()
			ff.PotentialEnergy(mp, ms.Positions())
			Expect(strings.Count(logs.String(), "potential energy not implemented")).To(Equal(2))
		})
	})

	Describe("lifecycle", func() {
		It("moves through its phases", func() {
			Expect(ff.Phase()).To(Equal(forcefield.Unconfigured))
			ff.BwdInit()
			Expect(ff.Phase()).To(Equal(forcefield.Initialized))
			evaluate()
			Expect(ff.Phase()).To(Equal(forcefield.PerStepReady))
			ff.Reinit()
			Expect(ff.Phase()).To(Equal(forcefield.Initialized))
		})

		It("initializes lazily on the first evaluation", func() {
			ff.SetPoints([]int{3})
			f := evaluate()
			Expect(ff.Indices()).To(Equal([]int{3}))
			Expect(f[3].IsZero()).To(BeTrue())
		})
	})
})
