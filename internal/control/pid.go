package control

// DefaultIntegralBound keeps the accumulated error inside a range the
// actuator can actually answer to.
const DefaultIntegralBound = 50.0

// PID is the classical closed-loop controller. Compute returns the change
// in commanded amplitude, not an absolute value; the loop adds it to the
// running command.
//
// With Clamp off the integral term is unbounded on purpose: a persistent
// error (a blocked pipe) winds it up far past anything useful, and the
// overshoot after the blockage clears is the failure mode the windup demo
// and its tests exercise. Do not "fix" this by always clamping.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	// Clamp limits the integral to [-Bound, Bound] after every update.
	Clamp bool
	Bound float64

	integral  float64
	prevError float64
}

func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		Clamp: true,
		Bound: DefaultIntegralBound,
	}
}

func (p *PID) Compute(setpoint, measurement float64) (float64, bool) {
	err := setpoint - measurement

	p.integral += err
	if p.Clamp {
		if p.integral > p.Bound {
			p.integral = p.Bound
		} else if p.integral < -p.Bound {
			p.integral = -p.Bound
		}
	}

	out := p.Kp*err + p.Ki*p.integral + p.Kd*(err-p.prevError)
	p.prevError = err

	return out, true
}

func (p *PID) Absolute() bool { return false }

// Integral exposes the accumulator for inspection and plotting.
func (p *PID) Integral() float64 { return p.integral }

// Reset clears the accumulated state between runs.
func (p *PID) Reset() {
	p.integral = 0
	p.prevError = 0
}
