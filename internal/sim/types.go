package sim

// Sample is one entry of a disturbance timeline: additive sensor noise and
// a multiplicative load factor for a single time step.
type Sample struct {
	Step  int
	Noise float64
	Load  float64
}

type Status int

const (
	StatusNormal Status = iota
	StatusSensorGlitch
	StatusLoadBlockage
)

func (s Status) String() string {
	switch s {
	case StatusSensorGlitch:
		return "sensor_glitch"
	case StatusLoadBlockage:
		return "load_blockage"
	default:
		return "normal"
	}
}

const (
	GlitchThreshold   = 0.5
	BlockageThreshold = 0.9
)

// StatusOf derives the step status from the disturbance sample. A glitch
// takes precedence over a blockage.
func StatusOf(s Sample) Status {
	if s.Noise > GlitchThreshold || s.Noise < -GlitchThreshold {
		return StatusSensorGlitch
	}
	if s.Load < BlockageThreshold {
		return StatusLoadBlockage
	}
	return StatusNormal
}

// Plant advances actuator physics one step toward the commanded value and
// returns the measured output volume.
type Plant interface {
	Update(command, noise, load float64) float64
}

// Controller computes a command from the setpoint and the latest
// measurement. ok=false means the controller produced no result this step
// and the previous command must be held.
type Controller interface {
	Compute(setpoint, measurement float64) (value float64, ok bool)
	// Absolute reports whether Compute returns an absolute commanded
	// amplitude. When false the result is a delta added to the current
	// command. The two must never be mixed without accounting for it.
	Absolute() bool
}

// Step is one emitted record of the loop: the sample it consumed plus the
// per-pair measurements and resolved commands.
type Step struct {
	Index        int
	Sample       Sample
	Status       Status
	Measurements []float64
	Commands     []float64
	// Online[i] is false when pair i's controller returned no result.
	Online []bool
}

// Sink consumes step records in strict step order.
type Sink interface {
	Emit(Step)
}

type Config struct {
	Setpoint float64
	AmpMax   float64
}

func DefaultConfig() Config {
	return Config{
		Setpoint: 0.5,
		AmpMax:   10.0,
	}
}

// Pair binds one plant to one controller and carries the running command
// between steps.
type Pair struct {
	Name       string
	Plant      Plant
	Controller Controller
	// InitialCommand warm-starts the actuator instead of ramping from zero.
	InitialCommand float64

	command float64
}

// Command returns the most recently resolved command for the pair.
func (p *Pair) Command() float64 { return p.command }

type Result struct {
	Steps      []Step
	StepsTaken int
}
