// Package assembly lays mechanical states out in one global system matrix
// and hands force fields their block of it.
package assembly

import (
	"github.com/cpmech/gosl/la"
	"github.com/san-kum/restshape/internal/dynamo"
)

// MultiMatrixAccessor maps each registered state to a row/column offset in
// a global triplet matrix. States are laid out in registration order.
type MultiMatrixAccessor struct {
	global  *la.Triplet
	offsets map[string]int
	rows    map[string]int
	order   []string
	size    int
}

func New() *MultiMatrixAccessor {
	return &MultiMatrixAccessor{
		offsets: make(map[string]int),
		rows:    make(map[string]int),
	}
}

// AddState reserves BlockSize()*Size() rows for s. Adding a state twice
// keeps the first offset.
func (a *MultiMatrixAccessor) AddState(s dynamo.State) int {
	if off, ok := a.offsets[s.Name()]; ok {
		return off
	}
	off := a.size
	rows := s.Size() * s.Template().BlockSize()
	a.offsets[s.Name()] = off
	a.rows[s.Name()] = rows
	a.order = append(a.order, s.Name())
	a.size += rows
	return off
}

// Fits reports whether s still has the row count it was laid out with.
func (a *MultiMatrixAccessor) Fits(s dynamo.State) bool {
	rows, ok := a.rows[s.Name()]
	return ok && rows == s.Size()*s.Template().BlockSize()
}

// Layout drops the current layout and the matrix, then adds states in
// order. Setup must be called again before assembling.
func (a *MultiMatrixAccessor) Layout(states ...dynamo.State) {
	clear(a.offsets)
	clear(a.rows)
	a.order = nil
	a.size = 0
	a.global = nil
	for _, s := range states {
		a.AddState(s)
	}
}

// Setup allocates the global matrix for at most maxEntries triplets. It
// must be called after all states are added.
func (a *MultiMatrixAccessor) Setup(maxEntries int) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	a.global = new(la.Triplet)
	a.global.Init(a.size, a.size, maxEntries)
}

// Start clears the entries but keeps the allocation. Slots past the new
// entries keep stale values, so reads go through Dense.
func (a *MultiMatrixAccessor) Start() {
	if a.global != nil {
		a.global.Start()
	}
}

func (a *MultiMatrixAccessor) Size() int           { return a.size }
func (a *MultiMatrixAccessor) States() []string    { return a.order }
func (a *MultiMatrixAccessor) Global() *la.Triplet { return a.global }

func (a *MultiMatrixAccessor) Offset(name string) (int, bool) {
	off, ok := a.offsets[name]
	return off, ok
}

// Matrix implements dynamo.MatrixAccessor. Unknown states, and every state
// before Setup, get a nil matrix.
func (a *MultiMatrixAccessor) Matrix(s dynamo.State) dynamo.MatrixRef {
	if a == nil || s == nil || a.global == nil {
		return dynamo.MatrixRef{}
	}
	off, ok := a.offsets[s.Name()]
	if !ok {
		return dynamo.MatrixRef{}
	}
	return dynamo.MatrixRef{Matrix: a.global, Offset: off}
}

// Dense expands the entries put since the last Start. Duplicate triplets
// are summed.
func (a *MultiMatrixAccessor) Dense() *la.Matrix {
	if a.global == nil || a.global.Len() == 0 {
		return la.NewMatrix(a.size, a.size)
	}
	return a.global.ToMatrix(nil).ToDense()
}

// Diagonal returns the diagonal of the assembled matrix.
func (a *MultiMatrixAccessor) Diagonal() []float64 {
	d := make([]float64, a.size)
	if a.size == 0 {
		return d
	}
	dense := a.Dense()
	for i := range d {
		d[i] = dense.Get(i, i)
	}
	return d
}
