package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSetpoint = 0.5
	DefaultSteps    = 300
	DefaultKp       = 10.0
	DefaultKi       = 4.2
	DefaultKd       = 2.5
	DefaultBound    = 50.0
	DefaultJitter   = 0.01
)

type Config struct {
	Setpoint float64        `yaml:"setpoint"`
	Steps    int            `yaml:"steps"`
	Seed     int64          `yaml:"seed"`
	Plant    PlantConfig    `yaml:"plant"`
	PID      PIDConfig      `yaml:"pid"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Engine   EngineConfig   `yaml:"engine"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type PlantConfig struct {
	// Kind selects the actuator model: "piston" or "inertial".
	Kind    string  `yaml:"kind"`
	LagGain float64 `yaml:"lag_gain"`
}

type PIDConfig struct {
	Kp    float64 `yaml:"kp"`
	Ki    float64 `yaml:"ki"`
	Kd    float64 `yaml:"kd"`
	Clamp bool    `yaml:"clamp"`
	Bound float64 `yaml:"bound"`
}

type ScenarioConfig struct {
	Jitter   float64 `yaml:"jitter"`
	Glitches int     `yaml:"glitches"`
}

type EngineConfig struct {
	// Command is the engine executable; Program is the path of the control
	// program file handed to it at startup.
	Command       string        `yaml:"command"`
	Program       string        `yaml:"program"`
	Inputs        int           `yaml:"inputs"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	AcceptTimeout time.Duration `yaml:"accept_timeout"`
}

type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		Setpoint: DefaultSetpoint,
		Steps:    DefaultSteps,
		Seed:     1,
		Plant: PlantConfig{
			Kind:    "piston",
			LagGain: 0.4,
		},
		PID: PIDConfig{
			Kp:    DefaultKp,
			Ki:    DefaultKi,
			Kd:    DefaultKd,
			Clamp: true,
			Bound: DefaultBound,
		},
		Scenario: ScenarioConfig{
			Jitter:   DefaultJitter,
			Glitches: 2,
		},
		Engine: EngineConfig{
			Inputs:        1,
			ReadyTimeout:  5 * time.Second,
			AcceptTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Topic: "pumplab/steps",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.Setpoint < 0 {
		return fmt.Errorf("setpoint must be non-negative, got %v", c.Setpoint)
	}
	switch c.Plant.Kind {
	case "piston", "inertial":
	default:
		return fmt.Errorf("unknown plant kind %q", c.Plant.Kind)
	}
	if c.Engine.Inputs < 1 || c.Engine.Inputs > 2 {
		return fmt.Errorf("engine inputs must be 1 or 2, got %d", c.Engine.Inputs)
	}
	return nil
}
