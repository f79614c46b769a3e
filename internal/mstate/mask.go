package mstate

// ForceMask marks the DOFs that received a force contribution this step.
// Downstream passes skip unmarked DOFs.
type ForceMask struct {
	active []bool
	count  int
}

func NewForceMask(n int) *ForceMask {
	return &ForceMask{active: make([]bool, n)}
}

func (m *ForceMask) Insert(i int) {
	if i < 0 || i >= len(m.active) || m.active[i] {
		return
	}
	m.active[i] = true
	m.count++
}

func (m *ForceMask) Contains(i int) bool {
	return i >= 0 && i < len(m.active) && m.active[i]
}

func (m *ForceMask) Count() int { return m.count }

func (m *ForceMask) Clear() {
	for i := range m.active {
		m.active[i] = false
	}
	m.count = 0
}

func (m *ForceMask) Resize(n int) {
	active := make([]bool, n)
	copy(active, m.active)
	m.active = active
	m.count = 0
	for _, a := range active {
		if a {
			m.count++
		}
	}
}

// Indices returns the marked DOFs in ascending order.
func (m *ForceMask) Indices() []int {
	out := make([]int, 0, m.count)
	for i, a := range m.active {
		if a {
			out = append(out, i)
		}
	}
	return out
}
