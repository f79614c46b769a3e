package forcefield

import (
	"slices"

	"github.com/charmbracelet/log"
)

// RecomputeIndices re-derives the local/reference index pairs and the
// per-index stiffness from the current configuration. Calling it twice with
// unchanged inputs yields identical caches.
func (ff *RestShapeSpringForceField) RecomputeIndices() {
	n := ff.mstate.Size()
	prevIndices := slices.Clone(ff.indices)
	prevExt := slices.Clone(ff.extIndices)

	ff.indices = ff.indices[:0]
	ff.slots = ff.slots[:0]

	if len(ff.points) == 0 {
		for i := 0; i < n; i++ {
			ff.indices = append(ff.indices, i)
			ff.slots = append(ff.slots, i)
		}
	} else {
		seen := make(map[int]bool, len(ff.points))
		for slot, p := range ff.points {
			if p < 0 || p >= n {
				ff.report(log.ErrorLevel, "point index out of range, dropped", "index", p, "size", n)
				continue
			}
			if seen[p] {
				ff.report(log.WarnLevel, "duplicate point index, dropped", "index", p)
				continue
			}
			seen[p] = true
			ff.indices = append(ff.indices, p)
			ff.slots = append(ff.slots, slot)
		}
	}

	ff.resolveExtIndices()

	ff.resolvedSize = n
	ff.resolvedExtSize = ff.extSize()
	ff.indicesDirty = false
	ff.updateStiffness()

	if !slices.Equal(prevIndices, ff.indices) || !slices.Equal(prevExt, ff.extIndices) {
		ff.matrixDirty = true
	}
}

// resolveExtIndices pairs every resolved local index with a reference index.
// Without an external state, or without external_points, the pairing is the
// identity.
func (ff *RestShapeSpringForceField) resolveExtIndices() {
	ff.extIndices = ff.extIndices[:0]

	if !ff.useRestMState || len(ff.externalPoints) == 0 {
		ff.extIndices = append(ff.extIndices, ff.indices...)
	} else {
		ext := ff.externalPoints
		switch {
		case len(ext) == ff.configuredCount():
			for _, slot := range ff.slots {
				ff.extIndices = append(ff.extIndices, ext[slot])
			}
		default:
			if len(ext) != len(ff.indices) {
				ff.report(log.ErrorLevel, "external_points and points differ in size, truncating to the shorter",
					"points", len(ff.indices), "external_points", len(ext))
			}
			m := min(len(ext), len(ff.indices))
			ff.indices = ff.indices[:m]
			ff.slots = ff.slots[:m]
			ff.extIndices = append(ff.extIndices, ext[:m]...)
		}
	}

	refSize := ff.extSize()
	keep := 0
	for j := range ff.indices {
		e := ff.extIndices[j]
		if e < 0 || e >= refSize {
			ff.report(log.ErrorLevel, "reference index out of range, pair dropped",
				"index", ff.indices[j], "reference", e, "size", refSize)
			continue
		}
		ff.indices[keep] = ff.indices[j]
		ff.slots[keep] = ff.slots[j]
		ff.extIndices[keep] = e
		keep++
	}
	ff.indices = ff.indices[:keep]
	ff.slots = ff.slots[:keep]
	ff.extIndices = ff.extIndices[:keep]
}

// configuredCount is the number of entries the user listed: the points list,
// or every DOF when it is empty.
func (ff *RestShapeSpringForceField) configuredCount() int {
	if len(ff.points) == 0 {
		return ff.mstate.Size()
	}
	return len(ff.points)
}

func (ff *RestShapeSpringForceField) updateStiffness() {
	prevK := slices.Clone(ff.k)
	prevKA := slices.Clone(ff.kA)
	ff.k = ff.expand(ff.k, "stiffness", ff.stiffness, DefaultStiffness)
	ff.kA = ff.expand(ff.kA, "angularStiffness", ff.angularStiffness, DefaultAngularStiffness)
	ff.stiffnessDirty = false
	if !slices.Equal(prevK, ff.k) || !slices.Equal(prevKA, ff.kA) {
		ff.matrixDirty = true
	}
}

// expand aligns raw stiffness values with the resolved indices: empty means
// def, one value is broadcast, a per-entry list follows the configured
// order. Any other length is reported and its first value broadcast.
func (ff *RestShapeSpringForceField) expand(dst []float64, name string, raw []float64, def float64) []float64 {
	dst = dst[:0]
	count := len(ff.indices)

	fill := func(v float64) []float64 {
		for j := 0; j < count; j++ {
			dst = append(dst, v)
		}
		return dst
	}

	switch {
	case len(raw) == 0:
		return fill(def)
	case len(raw) == 1:
		return fill(raw[0])
	case len(raw) == ff.configuredCount():
		for _, slot := range ff.slots {
			dst = append(dst, raw[slot])
		}
		return dst
	case len(raw) == count:
		return append(dst, raw...)
	default:
		ff.report(log.WarnLevel, name+" size does not match points, using first value",
			"values", len(raw), "points", count)
		return fill(raw[0])
	}
}
