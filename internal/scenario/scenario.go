package scenario

import (
	"fmt"
	"math/rand"

	"github.com/arvel-h/pumplab/internal/sim"
)

const (
	// DefaultJitter is the standard deviation of the baseline sensor noise.
	DefaultJitter = 0.01

	spikeMagnitude   = 1.5
	dropoutMagnitude = -0.5
	burstSigma       = 0.3
	blockageLoad     = 0.2

	spikeLen    = 3
	dropoutLen  = 3
	burstLen    = 11
	blockageLen = 41
)

// Generator produces a disturbance timeline: seeded Gaussian jitter on the
// sensor with a number of randomly placed fault events of random kind.
type Generator struct {
	Steps    int
	Jitter   float64
	Glitches int
	Seed     int64
}

func New(steps int, glitches int, seed int64) *Generator {
	return &Generator{
		Steps:    steps,
		Jitter:   DefaultJitter,
		Glitches: glitches,
		Seed:     seed,
	}
}

func (g *Generator) Generate() []sim.Sample {
	rng := rand.New(rand.NewSource(g.Seed))

	samples := make([]sim.Sample, g.Steps)
	for i := range samples {
		samples[i] = sim.Sample{
			Step:  i,
			Noise: rng.NormFloat64() * g.Jitter,
			Load:  1.0,
		}
	}

	if g.Steps < 60 {
		return samples
	}

	for n := 0; n < g.Glitches; n++ {
		at := 30 + rng.Intn(g.Steps-60)
		switch rng.Intn(4) {
		case 0: // spike: loose sensor wire
			for i := at; i < at+spikeLen && i < g.Steps; i++ {
				samples[i].Noise += spikeMagnitude
			}
		case 1: // dropout: sensor reads low
			for i := at; i < at+dropoutLen && i < g.Steps; i++ {
				samples[i].Noise += dropoutMagnitude
			}
		case 2: // noise burst
			for i := at; i < at+burstLen && i < g.Steps; i++ {
				samples[i].Noise += rng.NormFloat64() * burstSigma
			}
		case 3: // partial blockage
			for i := at; i < at+blockageLen && i < g.Steps; i++ {
				samples[i].Load = blockageLoad
			}
		}
	}

	return samples
}

// Windup is the fixed profile that reproduces integral wind-up: a clean
// line except for a hard blockage between steps 100 and 200 inclusive.
func Windup(steps int, seed int64) []sim.Sample {
	rng := rand.New(rand.NewSource(seed))

	samples := make([]sim.Sample, steps)
	for i := range samples {
		load := 1.0
		if i >= 100 && i <= 200 {
			load = 0.15
		}
		samples[i] = sim.Sample{
			Step:  i,
			Noise: rng.NormFloat64() * 0.005,
			Load:  load,
		}
	}
	return samples
}

// Validate checks a timeline before handing it to the loop.
func Validate(samples []sim.Sample) error {
	for i, s := range samples {
		if s.Step != i {
			return fmt.Errorf("sample %d has step %d, timeline must be dense and ordered", i, s.Step)
		}
	}
	return nil
}
