package config

// Presets are named operating scenarios for quick runs without a config
// file. Each one starts from DefaultConfig and overrides the parts that
// define the scenario.
var Presets = map[string]func() *Config{
	"steady": func() *Config {
		cfg := DefaultConfig()
		cfg.Scenario.Glitches = 0
		return cfg
	},
	"glitchy": func() *Config {
		cfg := DefaultConfig()
		cfg.Scenario.Glitches = 5
		cfg.Scenario.Jitter = 0.02
		return cfg
	},
	"blockage": func() *Config {
		cfg := DefaultConfig()
		cfg.Steps = 400
		cfg.Scenario.Glitches = 1
		cfg.PID.Ki = 1.5
		return cfg
	},
	"windup": func() *Config {
		cfg := DefaultConfig()
		cfg.Steps = 400
		cfg.Scenario.Glitches = 0
		cfg.Scenario.Jitter = 0.005
		cfg.PID.Clamp = false
		cfg.PID.Ki = 1.5
		return cfg
	},
	"inertial": func() *Config {
		cfg := DefaultConfig()
		cfg.Plant.Kind = "inertial"
		cfg.PID.Kp = 2.0
		cfg.PID.Ki = 0.5
		cfg.PID.Kd = 4.0
		return cfg
	},
}

// PresetNames lists the available presets in a stable order.
func PresetNames() []string {
	return []string{"steady", "glitchy", "blockage", "windup", "inertial"}
}

func Preset(name string) (*Config, bool) {
	f, ok := Presets[name]
	if !ok {
		return nil, false
	}
	return f(), true
}
