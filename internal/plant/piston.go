package plant

import "math"

const (
	// DefaultLagGain is the fraction of the remaining stroke the motor
	// covers per step (first-order lag).
	DefaultLagGain = 0.4
	// ConversionFactor maps piston amplitude (mm) to delivered volume (ml):
	// 1 mm of stroke moves 0.1 ml.
	ConversionFactor = 0.1
	// AmpMax is the mechanical travel limit of the simple piston.
	AmpMax = 10.0
)

// PistonPump is a first-order-lag actuator: the stroke amplitude moves a
// fixed fraction of the way to the commanded amplitude each step, and the
// measured volume is amplitude scaled by the load factor plus sensor noise.
type PistonPump struct {
	LagGain   float64
	Amplitude float64
}

func NewPistonPump() *PistonPump {
	return &PistonPump{LagGain: DefaultLagGain}
}

// Update advances the stroke one step toward command and returns the
// measured volume. load < 1 models a partial blockage; noise perturbs the
// sensor reading and may be negative. The result is never negative.
func (p *PistonPump) Update(command, noise, load float64) float64 {
	p.Amplitude += (command - p.Amplitude) * p.LagGain
	p.Amplitude = clamp(p.Amplitude, 0, AmpMax)

	return math.Max(0, p.Amplitude*ConversionFactor*load+noise)
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
