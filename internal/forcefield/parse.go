package forcefield

import (
	"errors"
	"fmt"

	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/dynamo"
)

// Attribute names, current spelling first.
var (
	keyPoints           = []string{"points"}
	keyStiffness        = []string{"stiffness", "springStiffness"}
	keyAngularStiffness = []string{"angularStiffness"}
	keyExternalPoints   = []string{"external_points", "externalIndices"}
	keyBiasForce        = []string{"biasForce"}
	keyBiasTorque       = []string{"biasTorque"}
	keyRecompute        = []string{"recompute_indices"}
	keyRestShape        = []string{"external_rest_shape", "restMState"}
)

// Parse reads the force field's attributes from desc. Malformed values are
// collected into the returned error and leave the previous setting in place;
// the remaining attributes are still applied.
func (ff *RestShapeSpringForceField) Parse(desc *config.Description) error {
	consumed := make(map[string]bool)
	var errs []error

	lookup := func(keys []string) (string, bool) {
		v, key, ok := desc.Lookup(keys...)
		if ok {
			for _, k := range keys {
				if _, _, present := desc.Lookup(k); present {
					consumed[k] = true
				}
			}
			if key != keys[0] {
				ff.logger.Debug("legacy attribute name", "attribute", key, "use", keys[0])
			}
		}
		return v, ok
	}
	fail := func(name string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}

	if v, ok := lookup(keyPoints); ok {
		if pts, err := config.ParseIndices(v); err != nil {
			fail("points", err)
		} else {
			ff.SetPoints(pts)
		}
	}
	if v, ok := lookup(keyStiffness); ok {
		if k, err := config.ParseReals(v); err != nil {
			fail("stiffness", err)
		} else {
			ff.SetStiffness(k)
		}
	}
	if v, ok := lookup(keyAngularStiffness); ok {
		if k, err := config.ParseReals(v); err != nil {
			fail("angularStiffness", err)
		} else {
			ff.SetAngularStiffness(k)
		}
	}
	if v, ok := lookup(keyExternalPoints); ok {
		if pts, err := config.ParseIndices(v); err != nil {
			fail("external_points", err)
		} else {
			ff.SetExternalPoints(pts)
		}
	}
	force, torque := ff.biasForce, ff.biasTorque
	if v, ok := lookup(keyBiasForce); ok {
		if b, err := config.ParseVec3(v); err != nil {
			fail("biasForce", err)
		} else {
			force = b
		}
	}
	if v, ok := lookup(keyBiasTorque); ok {
		if b, err := config.ParseVec3(v); err != nil {
			fail("biasTorque", err)
		} else {
			torque = b
		}
	}
	ff.SetBias(force, torque)
	if v, ok := lookup(keyRecompute); ok {
		if b, err := config.ParseBool(v); err != nil {
			fail("recompute_indices", err)
		} else {
			ff.SetRecomputeIndices(b)
		}
	}
	if v, ok := lookup(keyRestShape); ok {
		ff.SetRestState(v)
	}

	if err := ff.parseBase(desc, consumed); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// parseBase handles the attributes every force field understands and keeps
// the rest in Unknown.
func (ff *RestShapeSpringForceField) parseBase(desc *config.Description, consumed map[string]bool) error {
	var errs []error
	for _, key := range desc.Keys() {
		if consumed[key] {
			continue
		}
		v, _, _ := desc.Lookup(key)
		switch key {
		case "name":
			ff.name = v
			ff.logger = ff.logger.WithPrefix(v)
		case "template":
		case "rayleighStiffness":
			r, err := config.ParseReals(v)
			if err != nil || len(r) != 1 {
				errs = append(errs, fmt.Errorf("rayleighStiffness: %w: %q", dynamo.ErrInvalidAttribute, v))
				continue
			}
			ff.SetRayleighStiffness(r[0])
		default:
			ff.unknown[key] = v
			ff.logger.Debug("unknown attribute", "attribute", key)
		}
	}
	return errors.Join(errs...)
}
