// Package sink provides consumers for control-loop step records. The loop
// itself holds no rendering or storage logic; everything downstream of it
// is a Sink.
package sink

import (
	"github.com/arvel-h/pumplab/internal/sim"
)

// Memory buffers every step for later plotting or persistence.
type Memory struct {
	steps []sim.Step
}

func NewMemory(capacity int) *Memory {
	return &Memory{steps: make([]sim.Step, 0, capacity)}
}

func (m *Memory) Emit(step sim.Step) { m.steps = append(m.steps, step) }

func (m *Memory) Steps() []sim.Step { return m.steps }

// Series extracts one pair's measurement track, for the terminal plots.
func (m *Memory) Series(pair int) []float64 {
	out := make([]float64, 0, len(m.steps))
	for _, s := range m.steps {
		if pair < len(s.Measurements) {
			out = append(out, s.Measurements[pair])
		}
	}
	return out
}

// Func adapts a plain function to the Sink interface.
type Func func(sim.Step)

func (f Func) Emit(step sim.Step) { f(step) }

// Fanout forwards each step to every registered sink in order.
type Fanout []sim.Sink

func (f Fanout) Emit(step sim.Step) {
	for _, s := range f {
		s.Emit(step)
	}
}
