package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt      = 0.01
	DefaultKFactor = 1.0
	DefaultName    = "scene"

	ForceFieldType = "RestShapeSpringForceField"
)

// Config describes a scene: mechanical states, the force fields acting on
// them, and the prescribed displacement frames to evaluate.
type Config struct {
	Name        string             `yaml:"name"`
	Dt          float64            `yaml:"dt"`
	KFactor     float64            `yaml:"k_factor"`
	BFactor     float64            `yaml:"b_factor"`
	States      []StateConfig      `yaml:"states"`
	ForceFields []ForceFieldConfig `yaml:"forcefields"`
	Frames      []FrameConfig      `yaml:"frames"`
}

type StateConfig struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	// Size is used when Positions is empty: Size DOFs laid out along x.
	Size             int         `yaml:"size"`
	Positions        [][]float64 `yaml:"positions,omitempty"`
	Orientations     [][]float64 `yaml:"orientations,omitempty"`
	RestPositions    [][]float64 `yaml:"rest_positions,omitempty"`
	RestOrientations [][]float64 `yaml:"rest_orientations,omitempty"`
}

type ForceFieldConfig struct {
	Type       string            `yaml:"type"`
	Name       string            `yaml:"name"`
	State      string            `yaml:"state"`
	Attributes map[string]string `yaml:"attributes"`
}

// FrameConfig displaces DOFs away from rest before one evaluation.
// Displacements are relative to rest positions, not cumulative.
type FrameConfig struct {
	Time          float64              `yaml:"time"`
	Displacements []DisplacementConfig `yaml:"displacements"`
}

type DisplacementConfig struct {
	State       string    `yaml:"state"`
	DOF         int       `yaml:"dof"`
	Translation []float64 `yaml:"translation,omitempty"`
	Axis        []float64 `yaml:"axis,omitempty"`
	Angle       float64   `yaml:"angle,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:    DefaultName,
		Dt:      DefaultDt,
		KFactor: DefaultKFactor,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks structural consistency only. Force-field attributes are
// checked by the force field itself at init.
func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	if len(c.States) == 0 {
		return fmt.Errorf("scene %q has no states", c.Name)
	}
	names := make(map[string]bool, len(c.States))
	for _, s := range c.States {
		if s.Name == "" {
			return fmt.Errorf("state without name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate state %q", s.Name)
		}
		names[s.Name] = true
		if s.Size < 0 {
			return fmt.Errorf("state %q: negative size %d", s.Name, s.Size)
		}
		if err := checkTuples(s.Positions, 3, s.Name, "positions"); err != nil {
			return err
		}
		if err := checkTuples(s.RestPositions, 3, s.Name, "rest_positions"); err != nil {
			return err
		}
		if err := checkTuples(s.Orientations, 4, s.Name, "orientations"); err != nil {
			return err
		}
		if err := checkTuples(s.RestOrientations, 4, s.Name, "rest_orientations"); err != nil {
			return err
		}
	}
	for i, ff := range c.ForceFields {
		if ff.Type != "" && ff.Type != ForceFieldType {
			return fmt.Errorf("forcefield %d: unsupported type %q", i, ff.Type)
		}
		if !names[ff.State] {
			return fmt.Errorf("forcefield %d: unknown state %q", i, ff.State)
		}
	}
	for i, fr := range c.Frames {
		for _, d := range fr.Displacements {
			if !names[d.State] {
				return fmt.Errorf("frame %d: unknown state %q", i, d.State)
			}
			if len(d.Translation) != 0 && len(d.Translation) != 3 {
				return fmt.Errorf("frame %d: translation needs 3 components", i)
			}
			if len(d.Axis) != 0 && len(d.Axis) != 3 {
				return fmt.Errorf("frame %d: axis needs 3 components", i)
			}
		}
	}
	return nil
}

func checkTuples(rows [][]float64, n int, state, field string) error {
	for i, r := range rows {
		if len(r) != n {
			return fmt.Errorf("state %q: %s[%d] has %d components, want %d", state, field, i, len(r), n)
		}
	}
	return nil
}

// StateSize is the DOF count a state config resolves to.
func (s StateConfig) StateSize() int {
	if len(s.Positions) > 0 {
		return len(s.Positions)
	}
	return s.Size
}
