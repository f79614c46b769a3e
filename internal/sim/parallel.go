package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/dynamo"
)

// Probe selects the DOF a sweep moves and the direction it moves along.
// With Rotate set, values are angles about Axis; otherwise they are
// distances along it.
type Probe struct {
	State  string
	DOF    int
	Axis   mgl64.Vec3
	Rotate bool
}

type SweepPoint struct {
	Value  float64
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

// Sweep evaluates one displaced DOF at many amplitudes. Each sample builds
// its own scene, so samples run concurrently.
type Sweep struct {
	scene  *config.Config
	logger *log.Logger
}

func NewSweep(scene *config.Config, logger *log.Logger) *Sweep {
	return &Sweep{scene: scene, logger: logger}
}

func (sw *Sweep) Run(ctx context.Context, probe Probe, values []float64, cfg Config) ([]SweepPoint, error) {
	points := make([]SweepPoint, len(values))
	errs := make([]error, len(values))

	var wg sync.WaitGroup
	for i, v := range values {
		wg.Add(1)
		go func(idx int, v float64) {
			defer wg.Done()
			points[idx], errs[idx] = sw.sample(ctx, probe, v, cfg)
		}(i, v)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return points, nil
}

func (sw *Sweep) sample(ctx context.Context, probe Probe, v float64, cfg Config) (SweepPoint, error) {
	select {
	case <-ctx.Done():
		return SweepPoint{}, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
	default:
	}

	scene, err := BuildScene(sw.scene, sw.logger)
	if err != nil {
		return SweepPoint{}, err
	}

	d := Displacement{State: probe.State, DOF: probe.DOF}
	if probe.Rotate {
		d.Axis, d.Angle = probe.Axis, v
	} else {
		d.Translation = probe.Axis.Mul(v)
	}
	if err := scene.Displace(d); err != nil {
		return SweepPoint{}, err
	}

	forces, _ := scene.Evaluate(scene.Params(cfg, 0))
	f := forces[probe.State][probe.DOF]
	return SweepPoint{Value: v, Force: f.VCenter, Torque: f.VOrientation}, nil
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
