package viz

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/mstate"
	"github.com/san-kum/restshape/internal/sim"
)

const (
	historyLen  = 60
	maxRows     = 16
	defaultStep = 0.1
)

var axes = [3]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

type dofKey struct {
	state string
	dof   int
}

// Inspector lets the user displace DOFs of a scene and shows the resulting
// forces and stiffness diagonal.
type Inspector struct {
	scene *sim.Scene
	cfg   sim.Config

	stateIdx int
	cursor   int
	axis     int
	rotate   bool
	step     float64

	offsets map[dofKey]sim.Displacement
	forces  map[string]dynamo.VecDeriv
	diag    []float64
	history []float64
	err     error

	theme    Theme
	pal      palette
	width    int
	quitting bool
}

func NewInspector(scene *sim.Scene, cfg sim.Config, theme string) *Inspector {
	t := GetTheme(theme)
	m := &Inspector{
		scene:   scene,
		cfg:     cfg,
		step:    defaultStep,
		offsets: make(map[dofKey]sim.Displacement),
		theme:   t,
		pal:     newPalette(t),
		width:   80,
	}
	m.evaluate()
	return m
}

func (m *Inspector) Init() tea.Cmd { return nil }

func (m *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m *Inspector) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.history = m.history[:0]
		}
	case "down", "j":
		if st := m.current(); st != nil && m.cursor < st.Size()-1 {
			m.cursor++
			m.history = m.history[:0]
		}
	case "tab":
		if len(m.scene.States) > 0 {
			m.stateIdx = (m.stateIdx + 1) % len(m.scene.States)
			m.cursor = 0
			m.history = m.history[:0]
		}
	case "x":
		m.axis = 0
	case "y":
		m.axis = 1
	case "z":
		m.axis = 2
	case "r":
		m.rotate = !m.rotate
	case "l", "right", "+", "=":
		m.nudge(m.step)
	case "h", "left", "-":
		m.nudge(-m.step)
	case "]":
		m.step *= 2
	case "[":
		m.step /= 2
	case "0":
		if st := m.current(); st != nil {
			delete(m.offsets, dofKey{st.Name(), m.cursor})
			m.evaluate()
		}
	case "R":
		clear(m.offsets)
		m.evaluate()
	case "t":
		m.theme = nextTheme(m.theme)
		m.pal = newPalette(m.theme)
	}
	return m, nil
}

func (m *Inspector) current() *mstate.MechanicalState {
	if m.stateIdx >= len(m.scene.States) {
		return nil
	}
	return m.scene.States[m.stateIdx]
}

// nudge moves the selected DOF by delta along the current axis, as a
// translation or a rotation.
func (m *Inspector) nudge(delta float64) {
	st := m.current()
	if st == nil {
		return
	}
	key := dofKey{st.Name(), m.cursor}
	d, ok := m.offsets[key]
	if !ok {
		d = sim.Displacement{State: st.Name(), DOF: m.cursor}
	}

	if m.rotate && st.Template().HasOrientation() {
		// accumulate as a rotation vector
		rv := d.Axis.Mul(d.Angle).Add(axes[m.axis].Mul(delta))
		d.Angle = rv.Len()
		d.Axis = mgl64.Vec3{}
		if d.Angle > 0 {
			d.Axis = rv.Mul(1 / d.Angle)
		}
	} else {
		d.Translation = d.Translation.Add(axes[m.axis].Mul(delta))
	}

	m.offsets[key] = d
	m.evaluate()
}

func (m *Inspector) evaluate() {
	m.scene.Reset()
	m.err = nil
	for _, d := range m.offsets {
		if err := m.scene.Displace(d); err != nil {
			m.err = err
		}
	}
	m.forces, m.diag = m.scene.Evaluate(m.scene.Params(m.cfg, 0))

	if st := m.current(); st != nil {
		if f := m.forces[st.Name()]; m.cursor < len(f) {
			m.history = append(m.history, f[m.cursor].Norm())
			if len(m.history) > historyLen {
				m.history = m.history[len(m.history)-historyLen:]
			}
		}
	}
}

// Force returns the last evaluated force on a DOF.
func (m *Inspector) Force(state string, dof int) dynamo.Deriv {
	f := m.forces[state]
	if dof < 0 || dof >= len(f) {
		return dynamo.Deriv{}
	}
	return f[dof]
}

func (m *Inspector) Selected() (string, int) {
	if st := m.current(); st != nil {
		return st.Name(), m.cursor
	}
	return "", 0
}

func (m *Inspector) View() string {
	if m.quitting {
		return ""
	}
	st := m.current()
	if st == nil || st.Size() == 0 {
		return m.pal.warn.Render("nothing to inspect") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.pal.title.Render("restshape inspect") + "  " +
		m.pal.label.Render(fmt.Sprintf("%s · %s · %s", m.scene.Name, st.Name(), st.Template())) + "\n")
	b.WriteString(Separator(min(m.width, 72)) + "\n")

	loaded := m.loaded(st.Name())
	f := m.forces[st.Name()]
	off, _ := m.scene.Accessor.Offset(st.Name())
	bs := st.Template().BlockSize()

	first := max(0, min(m.cursor-maxRows/2, st.Size()-maxRows))
	last := min(st.Size(), first+maxRows)
	for i := first; i < last; i++ {
		mark := "  "
		if slices.Contains(loaded, i) {
			mark = m.pal.loaded.Render("● ")
		}
		k := 0.0
		if row := off + i*bs; row < len(m.diag) {
			k = m.diag[row]
		}
		line := fmt.Sprintf("%4d  |f| %9.4f  k %9.3f", i, f[i].Norm(), k)
		if _, moved := m.offsets[dofKey{st.Name(), i}]; moved {
			line += "  *"
		}
		if i == m.cursor {
			line = m.pal.selected.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(mark + line + "\n")
	}

	b.WriteString("\n" + m.details(st, f))
	b.WriteString("\n" + SparklineChart(m.history, min(historyLen, max(m.width-4, 8))) + "\n")
	if m.err != nil {
		b.WriteString(ErrorStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(m.pal.muted.Render("j/k select · tab state · x/y/z axis · r rotate · h/l nudge · [ ] step · 0/R reset · t theme · q quit") + "\n")
	return b.String()
}

func (m *Inspector) details(st *mstate.MechanicalState, f dynamo.VecDeriv) string {
	d := f[m.cursor]
	mode := "translate"
	if m.rotate {
		mode = "rotate"
	}
	lines := []string{
		Metric("dof    ", fmt.Sprintf("%d", m.cursor)),
		Metric("force  ", formatVec(d.VCenter)),
	}
	if st.Template().HasOrientation() {
		lines = append(lines, Metric("torque ", formatVec(d.VOrientation)))
	}
	lines = append(lines,
		Metric("nudge  ", fmt.Sprintf("%s %s by %g", mode, "xyz"[m.axis:m.axis+1], m.step)),
	)
	return m.pal.panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// loaded collects the DOFs some force field acts on.
func (m *Inspector) loaded(state string) []int {
	var out []int
	for _, ff := range m.scene.ForceFields {
		if ff.MState().Name() == state {
			out = append(out, ff.Indices()...)
		}
	}
	return out
}

func formatVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v[0], v[1], v[2])
}
