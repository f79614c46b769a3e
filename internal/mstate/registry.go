package mstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/restshape/internal/dynamo"
)

// Registry maps names to mechanical states. Links hold a name, not the
// state, so a removed state simply stops resolving.
type Registry struct {
	states map[string]*MechanicalState
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*MechanicalState)}
}

func (r *Registry) Register(ms *MechanicalState) error {
	if _, ok := r.states[ms.Name()]; ok {
		return fmt.Errorf("%w: %s", dynamo.ErrDuplicateState, ms.Name())
	}
	r.states[ms.Name()] = ms
	return nil
}

func (r *Registry) Remove(name string) {
	delete(r.states, name)
}

func (r *Registry) Lookup(path string) (*MechanicalState, bool) {
	ms, ok := r.states[normalizePath(path)]
	return ms, ok
}

func (r *Registry) Get(path string) (*MechanicalState, error) {
	ms, ok := r.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownState, path)
	}
	return ms, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Link is a weak reference to a registered state, stored as a path
// ("@name" or "name").
type Link struct {
	path string
	reg  *Registry
}

func NewLink(reg *Registry, path string) Link {
	return Link{path: path, reg: reg}
}

func (l Link) Path() string { return l.path }
func (l Link) IsSet() bool  { return normalizePath(l.path) != "" }

// Get resolves the link. It fails if the path is empty, the registry is
// missing, or the target has been removed.
func (l Link) Get() (*MechanicalState, bool) {
	if l.reg == nil || !l.IsSet() {
		return nil, false
	}
	return l.reg.Lookup(l.path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "@")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}
