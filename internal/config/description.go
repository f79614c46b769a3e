package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/dynamo"
)

// Description is the raw attribute set of one component as written in a
// scene file. Values are strings; lists are whitespace or comma separated.
type Description struct {
	Type  string
	Name  string
	attrs map[string]string
}

func NewDescription(typ, name string, attrs map[string]string) *Description {
	d := &Description{Type: typ, Name: name, attrs: make(map[string]string, len(attrs))}
	for k, v := range attrs {
		d.attrs[k] = v
	}
	return d
}

// Description builds the attribute set for this force-field entry.
func (f ForceFieldConfig) Description() *Description {
	typ := f.Type
	if typ == "" {
		typ = ForceFieldType
	}
	return NewDescription(typ, f.Name, f.Attributes)
}

// Lookup returns the value of the first key present, and the key that
// matched. Later keys are alternate spellings.
func (d *Description) Lookup(keys ...string) (value, key string, ok bool) {
	for _, k := range keys {
		if v, found := d.attrs[k]; found {
			return v, k, true
		}
	}
	return "", "", false
}

func (d *Description) Set(key, value string) { d.attrs[key] = value }

func (d *Description) Keys() []string {
	keys := make([]string, 0, len(d.attrs))
	for k := range d.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '[' || r == ']'
	})
}

func ParseIndices(s string) ([]int, error) {
	parts := fields(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: index %q", dynamo.ErrInvalidAttribute, p)
		}
		out = append(out, v)
	}
	return out, nil
}

func ParseReals(s string) ([]float64, error) {
	parts := fields(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: real %q", dynamo.ErrInvalidAttribute, p)
		}
		out = append(out, v)
	}
	return out, nil
}

func ParseVec3(s string) (mgl64.Vec3, error) {
	vals, err := ParseReals(s)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	if len(vals) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("%w: vec3 needs 3 components, got %d", dynamo.ErrInvalidAttribute, len(vals))
	}
	return mgl64.Vec3{vals[0], vals[1], vals[2]}, nil
}

// ParseBool accepts the usual strconv spellings.
func ParseBool(s string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%w: bool %q", dynamo.ErrInvalidAttribute, s)
	}
	return v, nil
}
