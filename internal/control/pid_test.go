package control

import (
	"math"
	"testing"

	"github.com/arvel-h/pumplab/internal/plant"
)

func TestPIDClampHoldsIntegralBound(t *testing.T) {
	pid := NewPID(4.0, 0.5, 1.0)
	pid.Bound = 5.0

	// Constant full error plus alternating noise for good measure.
	for i := 0; i < 500; i++ {
		measurement := 0.0
		if i%3 == 0 {
			measurement = 1.5
		}
		pid.Compute(0.5, measurement)

		if got := pid.Integral(); got < -5.0 || got > 5.0 {
			t.Fatalf("step %d: integral %f left [-5, 5]", i, got)
		}
	}
}

func TestPIDWindupGrowsWithoutClamp(t *testing.T) {
	pid := NewPID(8.0, 1.5, 0.0)
	pid.Clamp = false

	prev := pid.Integral()
	for i := 0; i < 300; i++ {
		pid.Compute(0.5, 0.2) // persistent positive error

		if pid.Integral() <= prev {
			t.Fatalf("step %d: integral stopped growing (%f -> %f)", i, prev, pid.Integral())
		}
		prev = pid.Integral()
	}

	// 300 steps of +0.3 error.
	if prev < 89.0 {
		t.Errorf("expected unbounded accumulation, got %f", prev)
	}
}

func TestPIDConvergesOnCleanScenario(t *testing.T) {
	pump := plant.NewPistonPump()
	pid := NewPID(10.0, 4.2, 2.5)

	command := 0.0
	var measurement float64
	for i := 0; i < 50; i++ {
		measurement = pump.Update(command, 0, 1.0)
		delta, _ := pid.Compute(0.5, measurement)
		command += delta
		if command < 0 {
			command = 0
		} else if command > 10 {
			command = 10
		}

		if math.IsNaN(measurement) || math.IsInf(measurement, 0) {
			t.Fatalf("step %d: measurement diverged", i)
		}
	}

	if math.Abs(measurement-0.5) > 0.05 {
		t.Errorf("expected convergence toward 0.5 within 50 steps, got %f", measurement)
	}
}

func TestPIDWindupOnBlockage(t *testing.T) {
	pump := plant.NewPistonPump()
	pid := NewPID(4.0, 1.5, 1.0)
	pid.Clamp = false

	command := 0.0
	run := func(steps int, load float64) {
		for i := 0; i < steps; i++ {
			m := pump.Update(command, 0, load)
			delta, _ := pid.Compute(0.5, m)
			command += delta
			if command < 0 {
				command = 0
			} else if command > 10 {
				command = 10
			}
		}
	}

	// Settle on a clean line, note the steady-state integral, then block
	// the pipe for 100 steps.
	run(100, 1.0)
	steady := math.Abs(pid.Integral())

	run(100, 0.15)
	wound := math.Abs(pid.Integral())

	if wound < steady*10 {
		t.Errorf("expected integral to wind up at least 10x (steady %f, wound %f)", steady, wound)
	}
}

func TestManualIsAbsolute(t *testing.T) {
	m := &Manual{Amplitude: 7.0}

	out, ok := m.Compute(0.5, 0.1)
	if !ok || out != 7.0 {
		t.Errorf("expected (7.0, true), got (%f, %v)", out, ok)
	}
	if !m.Absolute() {
		t.Error("manual controller must report absolute output")
	}
}
