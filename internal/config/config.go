package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StepperConfig holds the configuration for one axis.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // driver ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	GearRatio     float64 `yaml:"gear_ratio"`    // motor revolutions per axis revolution
	LimitMinDeg   float64 `yaml:"limit_min_deg"` // soft travel limit, degrees
	LimitMaxDeg   float64 `yaml:"limit_max_deg"`
}

// SerialConfig describes the host link.
type SerialConfig struct {
	Device string `yaml:"device"` // e.g. "/dev/ttyAMA0"
	Baud   int    `yaml:"baud"`
}

// DefaultsConfig contains generic parameters (pulse cadence, debug).
type DefaultsConfig struct {
	StepDelayMs int  `yaml:"step_delay_ms"` // full STEP pulse period per microstep
	DebugLevel  int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all controller configuration.
type Config struct {
	Azimuth  StepperConfig  `yaml:"azimuth_stepper"`
	Altitude StepperConfig  `yaml:"altitude_stepper"`
	Serial   SerialConfig   `yaml:"serial"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := validateStepper("azimuth_stepper", &cfg.Azimuth); err != nil {
		return nil, err
	}
	if err := validateStepper("altitude_stepper", &cfg.Altitude); err != nil {
		return nil, err
	}

	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyAMA0"
	}
	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = 9600
	}
	if cfg.Defaults.StepDelayMs <= 0 {
		cfg.Defaults.StepDelayMs = 2 // reasonable default
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

// validateStepper applies defaults and checks one axis section.
func validateStepper(name string, sc *StepperConfig) error {
	if sc.StepsPerRev <= 0 {
		sc.StepsPerRev = 200 // common 1.8° motor
	}
	if sc.Microstepping <= 0 {
		sc.Microstepping = 16
	}
	if sc.GearRatio <= 0 {
		sc.GearRatio = 1.0
	}
	if sc.LimitMinDeg == 0 && sc.LimitMaxDeg == 0 {
		// small corrective moves only; a narrow window is the safe default
		sc.LimitMinDeg = -15
		sc.LimitMaxDeg = 15
	}
	if sc.LimitMinDeg >= sc.LimitMaxDeg {
		return fmt.Errorf("%s: limit_min_deg (%.2f) must be < limit_max_deg (%.2f)",
			name, sc.LimitMinDeg, sc.LimitMaxDeg)
	}
	if sc.LimitMinDeg > 0 || sc.LimitMaxDeg < 0 {
		return fmt.Errorf("%s: limits [%.2f, %.2f] must include 0 (the boot reference)",
			name, sc.LimitMinDeg, sc.LimitMaxDeg)
	}
	return nil
}

// StepsPerDegree derives the microstep count per logical degree of the
// axis: full steps × microstepping × gear ratio, spread over 360°.
// Constant for the process lifetime.
func (sc *StepperConfig) StepsPerDegree() float64 {
	return float64(sc.StepsPerRev*sc.Microstepping) * sc.GearRatio / 360.0
}

// StepDelay returns the full STEP pulse period.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Defaults.StepDelayMs) * time.Millisecond
}
