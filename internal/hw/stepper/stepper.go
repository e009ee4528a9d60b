package stepper

import (
	"time"

	"github.com/openastro/altaz/internal/debug"
	"github.com/openastro/altaz/internal/hw/gpio"
)

// Config holds the hardware configuration for one stepper motor.
type Config struct {
	Name      string // axis label for logs ("AZ", "ALT")
	StepPin   int
	DirPin    int
	EnablePin int           // driver ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepDelay time.Duration // delay per half-cycle of STEP pulse. Total pulse = 2*StepDelay.
}

// Stepper exposes the narrow pulse capability for one axis: set the
// direction line, then emit STEP pulses one at a time. The caller owns
// the pulse loop; there is no ramping, every pulse takes the same time.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between STEP pulse half-cycles
}

// NewStepper creates a new stepper pulse driver.
// cfg.StepDelay: if 0, defaults to 1ms per half-cycle.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// Driver ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// Name returns the axis label this motor was configured with.
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// SetDirection drives the DIR line. forward=true sets it HIGH.
func (s *Stepper) SetDirection(forward bool) error {
	level := gpio.Low
	dir := "backward"
	if forward {
		level = gpio.High
		dir = "forward"
	}
	debug.Trace("Stepper %s: direction %s", s.cfg.Name, dir)
	return s.gpio.WritePin(s.cfg.DirPin, level)
}

// Pulse emits a single STEP edge pair: HIGH, half-cycle delay, LOW,
// half-cycle delay. The motor advances one (micro)step per call.
func (s *Stepper) Pulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (ENABLE=LOW). The motor holds position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (ENABLE=HIGH). The motor freewheels
// with no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
