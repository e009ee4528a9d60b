package hostlink

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/openastro/altaz/internal/debug"
)

// SerialConfig describes the host-facing serial port.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration // bound on a single Poll read; 0 = 100ms
}

// OpenSerial opens the host link on a serial device. The read timeout
// keeps Poll bounded so the control loop never parks on a silent host.
func OpenSerial(cfg SerialConfig) (*Link, error) {
	debug.Info("Opening host link on %s @ %d baud", cfg.Device, cfg.Baud)

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return New(port), nil
}
