package sim

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/dynamo"
)

func quiet() *log.Logger { return log.New(io.Discard) }

func presetSimulator(t *testing.T, name string) (*Simulator, *config.Config) {
	t.Helper()
	cfg := config.GetPreset(name)
	if cfg == nil {
		t.Fatalf("missing preset %q", name)
	}
	scene, err := BuildScene(cfg, quiet())
	if err != nil {
		t.Fatalf("build scene: %v", err)
	}
	return New(scene, quiet()), cfg
}

func TestSimulatorRun(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")

	result, err := s.Run(context.Background(), FramesFromScene(cfg), ConfigFromScene(cfg))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.FramesRun != 3 || len(result.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", result.FramesRun)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}

	rest := result.Frames[0].Forces["body"]
	for i, d := range rest {
		if !d.IsZero() {
			t.Errorf("frame 0 dof %d: expected zero force, got %v", i, d)
		}
	}

	f := result.Frames[1].Forces["body"]
	if f[2].VCenter != (mgl64.Vec3{-10, 0, 0}) {
		t.Errorf("frame 1 dof 2: got %v, want (-10,0,0)", f[2].VCenter)
	}

	diag := result.Frames[1].Diagonal
	for row, v := range diag {
		want := 0.0
		if row/3 == 2 || row/3 == 5 {
			want = -10
		}
		if v != want {
			t.Errorf("diag[%d] = %v, want %v", row, v, want)
		}
	}
}

func TestFramesAreRelativeToRest(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")
	frames := FramesFromScene(cfg)

	result, err := s.Run(context.Background(), []Frame{frames[1], frames[0]}, ConfigFromScene(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Frames[1].Forces["body"][2].IsZero() {
		t.Error("displacement leaked into the next frame")
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s, _ := presetSimulator(t, "anchor")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, KFactor: 1}},
		{"negative dt", Config{Dt: -0.1, KFactor: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), []Frame{{}}, tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorCancel(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, FramesFromScene(cfg), ConfigFromScene(cfg))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result == nil || result.FramesRun != 0 {
		t.Errorf("expected empty partial result, got %+v", result)
	}
}

func TestSimulatorFrameErrors(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")
	frames := []Frame{{Displacements: []Displacement{{State: "body", DOF: 99}}}}

	result, err := s.Run(context.Background(), frames, ConfigFromScene(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 frame error, got %v", result.Errors)
	}
	var simErr *dynamo.SimError
	if !errors.As(result.Errors[0], &simErr) || simErr.State != "body" {
		t.Errorf("expected SimError for body, got %v", result.Errors[0])
	}
	if result.FramesRun != 1 {
		t.Errorf("frame should still be evaluated, got %d", result.FramesRun)
	}
}

func TestSimulatorStopsOnInvalidState(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")
	frames := []Frame{
		{Displacements: []Displacement{{State: "body", DOF: 0, Translation: mgl64.Vec3{math.NaN(), 0, 0}}}},
		{},
	}

	result, err := s.Run(context.Background(), frames, ConfigFromScene(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if result.FramesRun != 0 {
		t.Errorf("expected run to stop, got %d frames", result.FramesRun)
	}
	if len(result.Errors) == 0 || !errors.Is(result.Errors[0], dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", result.Errors)
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(state string, f dynamo.VecDeriv, time float64) {
	t.count++
	for _, d := range f {
		t.sum += d.Norm()
	}
}
func (t *testMetric) Value() float64 { return t.sum }
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

type testObserver struct{ frames []int }

func (o *testObserver) OnFrame(frame int, t float64, forces map[string]dynamo.VecDeriv) {
	o.frames = append(o.frames, frame)
}

func TestSimulatorMetricsAndObservers(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")

	metric := &testMetric{}
	obs := &testObserver{}
	s.AddMetric(metric)
	s.AddObserver(obs)

	result, err := s.Run(context.Background(), FramesFromScene(cfg), ConfigFromScene(cfg))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 3 {
		t.Errorf("expected 3 observations, got %d", metric.count)
	}
	if len(obs.frames) != 3 || obs.frames[2] != 2 {
		t.Errorf("observer saw frames %v", obs.frames)
	}
}

func TestRunWithCallback(t *testing.T) {
	s, cfg := presetSimulator(t, "anchor")

	calls := 0
	err := s.RunWithCallback(context.Background(), FramesFromScene(cfg), ConfigFromScene(cfg), func(i int, fr FrameResult) bool {
		calls++
		return i < 1
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected callback to stop after 2 frames, got %d", calls)
	}
}

func TestSweep(t *testing.T) {
	cfg := config.GetPreset("anchor")
	sw := NewSweep(cfg, quiet())

	values := Linspace(-1, 1, 5)
	points, err := sw.Run(context.Background(), Probe{State: "body", DOF: 5, Axis: mgl64.Vec3{0, 1, 0}}, values, ConfigFromScene(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}
	for _, p := range points {
		if math.Abs(p.Force[1]+10*p.Value) > 1e-12 {
			t.Errorf("value %v: force %v, want %v", p.Value, p.Force[1], -10*p.Value)
		}
	}
}

func TestSweepRotation(t *testing.T) {
	cfg := config.GetPreset("rigid")
	sw := NewSweep(cfg, quiet())

	points, err := sw.Run(context.Background(), Probe{State: "frames", DOF: 0, Axis: mgl64.Vec3{0, 0, 1}, Rotate: true}, []float64{0.5}, ConfigFromScene(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(points[0].Torque[2]+5*0.5) > 1e-9 {
		t.Errorf("torque %v, want -2.5 about z", points[0].Torque)
	}
}

func TestSweepBadProbe(t *testing.T) {
	cfg := config.GetPreset("anchor")
	_, err := NewSweep(cfg, quiet()).Run(context.Background(), Probe{State: "missing"}, []float64{0}, ConfigFromScene(cfg))
	if !errors.Is(err, dynamo.ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 1, 3)
	if len(got) != 3 || got[0] != 0 || got[1] != 0.5 || got[2] != 1 {
		t.Errorf("Linspace(0,1,3) = %v", got)
	}
	if got := Linspace(2, 5, 1); len(got) != 1 || got[0] != 2 {
		t.Errorf("Linspace n=1 = %v", got)
	}
}
