package sim

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/dynamo"
)

// Displacement moves one DOF away from its rest pose. Rotation is applied
// on oriented templates only.
type Displacement struct {
	State       string
	DOF         int
	Translation mgl64.Vec3
	Axis        mgl64.Vec3
	Angle       float64
}

// Frame is one quasi-static evaluation. Displacements are relative to rest,
// not to the previous frame.
type Frame struct {
	Time          float64
	Displacements []Displacement
}

type Config struct {
	Dt            float64
	KFactor       float64
	BFactor       float64
	ValidateState bool
}

type FrameResult struct {
	Time     float64
	Forces   map[string]dynamo.VecDeriv
	Diagonal []float64
}

type Result struct {
	Frames    []FrameResult
	Metrics   map[string]float64
	Errors    []error
	FramesRun int
}

// ConfigFromScene extracts the driver settings of a scene file.
func ConfigFromScene(cfg *config.Config) Config {
	return Config{
		Dt:            cfg.Dt,
		KFactor:       cfg.KFactor,
		BFactor:       cfg.BFactor,
		ValidateState: true,
	}
}

// FramesFromScene converts the frames of a scene file. A scene without
// frames evaluates once at rest.
func FramesFromScene(cfg *config.Config) []Frame {
	if len(cfg.Frames) == 0 {
		return []Frame{{Time: 0}}
	}
	frames := make([]Frame, len(cfg.Frames))
	for i, fc := range cfg.Frames {
		frames[i].Time = fc.Time
		for _, dc := range fc.Displacements {
			frames[i].Displacements = append(frames[i].Displacements, Displacement{
				State:       dc.State,
				DOF:         dc.DOF,
				Translation: vec3(dc.Translation),
				Axis:        vec3(dc.Axis),
				Angle:       dc.Angle,
			})
		}
	}
	return frames
}

func vec3(v []float64) mgl64.Vec3 {
	if len(v) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}
