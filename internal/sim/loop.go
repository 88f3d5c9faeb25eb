package sim

import (
	"context"
	"fmt"
	"io"
)

// Loop drives one or more plant/controller pairs in lock-step over a
// disturbance timeline. Every step advances exactly once and in order; step
// k+1 is never started before step k's commands are fully resolved.
type Loop struct {
	cfg   Config
	pairs []*Pair
}

func New(cfg Config, pairs ...*Pair) *Loop {
	return &Loop{cfg: cfg, pairs: pairs}
}

// Advance runs a single step for all pairs against one sample.
//
// Per pair: the plant moves toward the current command and yields a
// measurement; the controller turns setpoint+measurement into a command.
// Delta controllers adjust the running command, absolute controllers
// replace it, and a controller with no result leaves it untouched. The
// command is clamped to [0, AmpMax] either way.
func (l *Loop) Advance(sample Sample) Step {
	step := Step{
		Index:        sample.Step,
		Sample:       sample,
		Status:       StatusOf(sample),
		Measurements: make([]float64, len(l.pairs)),
		Commands:     make([]float64, len(l.pairs)),
		Online:       make([]bool, len(l.pairs)),
	}

	for i, p := range l.pairs {
		measurement := p.Plant.Update(p.command, sample.Noise, sample.Load)

		out, ok := p.Controller.Compute(l.cfg.Setpoint, measurement)
		if ok {
			if p.Controller.Absolute() {
				p.command = out
			} else {
				p.command += out
			}
		}
		p.command = clamp(p.command, 0, l.cfg.AmpMax)

		step.Measurements[i] = measurement
		step.Commands[i] = p.command
		step.Online[i] = ok
	}

	return step
}

// Run consumes the timeline in order, emitting each step to the sink before
// advancing. On cancellation the partial result is returned together with
// the context error, and any closeable controller is shut down.
func (l *Loop) Run(ctx context.Context, samples []Sample, sink Sink) (*Result, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	defer l.closeControllers()

	result := &Result{Steps: make([]Step, 0, len(samples))}

	for _, p := range l.pairs {
		p.command = clamp(p.InitialCommand, 0, l.cfg.AmpMax)
	}

	for _, sample := range samples {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		step := l.Advance(sample)
		if sink != nil {
			sink.Emit(step)
		}
		result.Steps = append(result.Steps, step)
		result.StepsTaken++
	}

	return result, nil
}

func (l *Loop) validate() error {
	if len(l.pairs) == 0 {
		return fmt.Errorf("loop needs at least one plant/controller pair")
	}
	if l.cfg.AmpMax <= 0 {
		return fmt.Errorf("amp max must be positive, got %f", l.cfg.AmpMax)
	}
	for _, p := range l.pairs {
		if p.Plant == nil || p.Controller == nil {
			return fmt.Errorf("pair %q is missing a plant or controller", p.Name)
		}
	}
	return nil
}

// closeControllers releases process-backed controllers. Close is idempotent
// on the bridge side, so a caller-side defer remains safe.
func (l *Loop) closeControllers() {
	for _, p := range l.pairs {
		if c, ok := p.Controller.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
