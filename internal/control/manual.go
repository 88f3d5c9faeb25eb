package control

// Manual pins the command to a fixed amplitude regardless of measurement.
// Useful as an open-loop baseline and in loop tests.
type Manual struct {
	Amplitude float64
}

func (m *Manual) Compute(setpoint, measurement float64) (float64, bool) {
	return m.Amplitude, true
}

func (m *Manual) Absolute() bool { return true }
