package sim

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/san-kum/restshape/internal/dynamo"
)

type Simulator struct {
	scene     *Scene
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	logger    *log.Logger
}

func New(scene *Scene, logger *log.Logger) *Simulator {
	if logger == nil {
		logger = log.Default()
	}
	return &Simulator{
		scene:     scene,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
		logger:    logger,
	}
}

func (s *Simulator) Scene() *Scene                 { return s.scene }
func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run evaluates every frame in order. Frame-level problems (bad
// displacement, non-finite state) are collected in Result.Errors; a
// non-finite state stops the run. Cancellation returns the partial result
// with an error wrapping both ErrContextCanceled and ctx.Err().
func (s *Simulator) Run(ctx context.Context, frames []Frame, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Frames:  make([]FrameResult, 0, len(frames)),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

loop:
	for i, fr := range frames {
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		s.scene.Reset()
		for _, d := range fr.Displacements {
			if err := s.scene.Displace(d); err != nil {
				result.Errors = append(result.Errors, &dynamo.SimError{Frame: i, Time: fr.Time, State: d.State, Wrapped: err})
			}
		}

		if cfg.ValidateState {
			for _, ms := range s.scene.States {
				if err := ms.Validate(); err != nil {
					result.Errors = append(result.Errors, &dynamo.SimError{Frame: i, Time: fr.Time, State: ms.Name(), Wrapped: err})
					break loop
				}
			}
		}

		forces, diag := s.scene.Evaluate(s.scene.Params(cfg, fr.Time))

		for name, f := range forces {
			for _, m := range s.metrics {
				m.Observe(name, f, fr.Time)
			}
		}
		for _, obs := range s.observers {
			obs.OnFrame(i, fr.Time, forces)
		}

		result.Frames = append(result.Frames, FrameResult{Time: fr.Time, Forces: forces, Diagonal: diag})
		result.FramesRun++
		s.logger.Debug("frame evaluated", "frame", i, "t", fr.Time)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if s.scene == nil {
		return fmt.Errorf("simulator has no scene")
	}
	return nil
}

// RunWithCallback evaluates frames until callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, frames []Frame, cfg Config, callback func(int, FrameResult) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	for i, fr := range frames {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		s.scene.Reset()
		for _, d := range fr.Displacements {
			if err := s.scene.Displace(d); err != nil {
				return &dynamo.SimError{Frame: i, Time: fr.Time, State: d.State, Wrapped: err}
			}
		}

		forces, diag := s.scene.Evaluate(s.scene.Params(cfg, fr.Time))
		if !callback(i, FrameResult{Time: fr.Time, Forces: forces, Diagonal: diag}) {
			return nil
		}
	}

	return nil
}
