package plant

import "math"

const (
	// AmpCeiling is the travel limit of the heavy piston.
	AmpCeiling = 20.0

	returnSpring    = 0.5
	forceGain       = 0.1
	velocityDamping = 0.9
)

// InertialPump is the higher-fidelity variant: the command acts as a force
// on a damped mass with a return spring, so the stroke carries momentum and
// overshoots instead of settling geometrically.
type InertialPump struct {
	Amplitude float64
	Velocity  float64
}

func NewInertialPump() *InertialPump {
	return &InertialPump{}
}

func (p *InertialPump) Update(command, noise, load float64) float64 {
	force := command - p.Amplitude*returnSpring
	p.Velocity += force * forceGain
	p.Velocity *= velocityDamping
	p.Amplitude += p.Velocity
	p.Amplitude = clamp(p.Amplitude, 0, AmpCeiling)

	return math.Max(0, p.Amplitude*ConversionFactor*load+noise)
}
