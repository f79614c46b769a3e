package forcefield

import (
	"github.com/charmbracelet/log"
	"github.com/san-kum/restshape/internal/dynamo"
)

// AddForce accumulates the spring and bias forces into f.
//
// For each pair (i, e): f[i] += k*(ref[e] - x[i]) + biasForce, and on
// oriented templates f[i].VOrientation += kA*rot(ref[e] * x[i]⁻¹) +
// biasTorque. DOFs outside Indices are left untouched.
func (ff *RestShapeSpringForceField) AddForce(mp dynamo.MechanicalParams, f dynamo.VecDeriv, x dynamo.VecCoord, v dynamo.VecDeriv) {
	ff.refresh(true)

	n := ff.mstate.Size()
	if len(f) < n || len(x) < n {
		ff.report(log.ErrorLevel, "force or position buffer shorter than state, skipped",
			"state", n, "force", len(f), "position", len(x))
		return
	}

	ref := ff.ExtPosition()
	oriented := ff.mstate.Template().HasOrientation()

	for j, i := range ff.indices {
		e := ff.extIndices[j]

		dx := ref[e].Center.Sub(x[i].Center)
		f[i].VCenter = f[i].VCenter.Add(dx.Mul(ff.k[j])).Add(ff.biasForce)

		if oriented {
			rot := dynamo.RotationError(ref[e].Orientation, x[i].Orientation)
			f[i].VOrientation = f[i].VOrientation.Add(rot.Mul(ff.kA[j])).Add(ff.biasTorque)
		}
	}

	ff.UpdateForceMask()
	ff.phase = PerStepReady
}

// AddDForce accumulates the force differential for displacement dx:
// df[i] -= kFactor * (k*dx.VCenter, kA*dx.VOrientation).
func (ff *RestShapeSpringForceField) AddDForce(mp dynamo.MechanicalParams, df dynamo.VecDeriv, dx dynamo.VecDeriv) {
	ff.refresh(false)

	n := ff.mstate.Size()
	if len(df) < n || len(dx) < n {
		ff.report(log.ErrorLevel, "differential buffer shorter than state, skipped",
			"state", n, "df", len(df), "dx", len(dx))
		return
	}

	kFactor := mp.KFactorIncludingRayleighDamping(ff.rayleighStiffness)
	oriented := ff.mstate.Template().HasOrientation()

	for j, i := range ff.indices {
		df[i].VCenter = df[i].VCenter.Sub(dx[i].VCenter.Mul(ff.k[j] * kFactor))
		if oriented {
			df[i].VOrientation = df[i].VOrientation.Sub(dx[i].VOrientation.Mul(ff.kA[j] * kFactor))
		}
	}
}

// UpdateForceMask marks every resolved index in the state's force mask.
func (ff *RestShapeSpringForceField) UpdateForceMask() {
	mask := ff.mstate.ForceMask()
	for _, i := range ff.indices {
		mask.Insert(i)
	}
}

// PotentialEnergy is not implemented for this force field; it reports an
// error once and returns 0.
func (ff *RestShapeSpringForceField) PotentialEnergy(mp dynamo.MechanicalParams, x dynamo.VecCoord) float64 {
	ff.report(log.ErrorLevel, "potential energy not implemented")
	return 0
}
