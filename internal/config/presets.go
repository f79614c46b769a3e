package config

import "sort"

func line(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(i), 0, 0}
	}
	return out
}

var Presets = map[string]*Config{
	"anchor": {
		Name: "anchor", Dt: 0.01, KFactor: 1.0,
		States: []StateConfig{{Name: "body", Template: "Vec3d", Positions: line(8)}},
		ForceFields: []ForceFieldConfig{{
			Name: "springs", State: "body",
			Attributes: map[string]string{"points": "2 5", "stiffness": "10"},
		}},
		Frames: []FrameConfig{
			{Time: 0.0},
			{Time: 0.01, Displacements: []DisplacementConfig{{State: "body", DOF: 2, Translation: []float64{1, 0, 0}}}},
			{Time: 0.02, Displacements: []DisplacementConfig{{State: "body", DOF: 2, Translation: []float64{0.5, -0.5, 0}}}},
		},
	},
	"all": {
		Name: "all", Dt: 0.01, KFactor: 1.0,
		States: []StateConfig{{Name: "body", Template: "Vec3d", Size: 5}},
		ForceFields: []ForceFieldConfig{{
			Name: "springs", State: "body",
			Attributes: map[string]string{"stiffness": "1 2 3 4 5"},
		}},
		Frames: []FrameConfig{
			{Time: 0.0, Displacements: []DisplacementConfig{
				{State: "body", DOF: 0, Translation: []float64{0, 0, 1}},
				{State: "body", DOF: 4, Translation: []float64{0, 0, 1}},
			}},
		},
	},
	"rigid": {
		Name: "rigid", Dt: 0.01, KFactor: 1.0,
		States: []StateConfig{{Name: "frames", Template: "Rigid3d", Positions: line(3)}},
		ForceFields: []ForceFieldConfig{{
			Name: "anchor", State: "frames",
			Attributes: map[string]string{"points": "0 2", "stiffness": "100", "angularStiffness": "5"},
		}},
		Frames: []FrameConfig{
			{Time: 0.0, Displacements: []DisplacementConfig{{State: "frames", DOF: 2, Axis: []float64{0, 0, 1}, Angle: 1.5707963267948966}}},
			{Time: 0.01, Displacements: []DisplacementConfig{{State: "frames", DOF: 0, Translation: []float64{0, 0.1, 0}, Axis: []float64{1, 0, 0}, Angle: 0.3}}},
		},
	},
	"bias": {
		Name: "bias", Dt: 0.01, KFactor: 1.0,
		States: []StateConfig{{Name: "frames", Template: "Rigid3d", Size: 4}},
		ForceFields: []ForceFieldConfig{{
			Name: "bias", State: "frames",
			Attributes: map[string]string{
				"points": "1 3", "stiffness": "0", "angularStiffness": "0",
				"biasForce": "0 -9.81 0", "biasTorque": "0 0 0.5",
			},
		}},
		Frames: []FrameConfig{{Time: 0.0}},
	},
	"external": {
		Name: "external", Dt: 0.01, KFactor: 1.0,
		States: []StateConfig{
			{Name: "body", Template: "Vec3d", Positions: line(4)},
			{Name: "target", Template: "Vec3d", Positions: [][]float64{{0, 1, 0}, {1, 1, 0}, {2, 1, 0}, {3, 1, 0}}},
		},
		ForceFields: []ForceFieldConfig{{
			Name: "follow", State: "body",
			Attributes: map[string]string{
				"points": "0 1", "external_points": "3 2",
				"stiffness": "4", "external_rest_shape": "@target",
			},
		}},
		Frames: []FrameConfig{{Time: 0.0}},
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
