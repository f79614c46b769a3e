package forcefield

import "github.com/san-kum/restshape/internal/dynamo"

type matEntry struct {
	row   int
	value float64
}

// blockDiagonal is the local stiffness matS. Springs never couple two DOFs,
// so only diagonal entries exist. Values are unscaled; the integration
// factor is applied when adding into the global matrix.
type blockDiagonal struct {
	entries []matEntry
}

// rebuild reuses the entry slice, so the allocation stays stable while the
// index set does not grow.
func (ff *RestShapeSpringForceField) rebuildMatrix() {
	bs := ff.mstate.Template().BlockSize()
	oriented := ff.mstate.Template().HasOrientation()

	ff.matS.entries = ff.matS.entries[:0]

	for j, i := range ff.indices {
		base := i * bs
		for d := 0; d < 3; d++ {
			ff.matS.entries = append(ff.matS.entries, matEntry{row: base + d, value: -ff.k[j]})
		}
		if oriented {
			for d := 3; d < 6; d++ {
				ff.matS.entries = append(ff.matS.entries, matEntry{row: base + d, value: -ff.kA[j]})
			}
		}
	}
	ff.matrixDirty = false
}

// MatrixEntries is the number of non-zeros the next AddKToMatrix call
// writes.
func (ff *RestShapeSpringForceField) MatrixEntries() int {
	ff.refresh(false)
	return len(ff.indices) * ff.mstate.Template().BlockSize()
}

// AddKToMatrix adds kFactor*matS onto the state's diagonal block of the
// global matrix. A nil accessor or a state without a matrix is skipped.
func (ff *RestShapeSpringForceField) AddKToMatrix(mp dynamo.MechanicalParams, m dynamo.MatrixAccessor) {
	if m == nil {
		return
	}
	ref := m.Matrix(ff.mstate)
	if ref.Matrix == nil {
		return
	}

	ff.refresh(false)
	if ff.matrixDirty || (ff.recomputeIndices && mp.Time != ff.lastUpdatedStep) {
		ff.rebuildMatrix()
		ff.lastUpdatedStep = mp.Time
	}

	kFactor := mp.KFactorIncludingRayleighDamping(ff.rayleighStiffness)
	for _, e := range ff.matS.entries {
		r := ref.Offset + e.row
		ref.Matrix.Put(r, r, kFactor*e.value)
	}
}
