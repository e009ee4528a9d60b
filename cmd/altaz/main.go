package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openastro/altaz/internal/config"
	"github.com/openastro/altaz/internal/debug"
	"github.com/openastro/altaz/internal/hw/gpio"
	"github.com/openastro/altaz/internal/hw/hostlink"
	"github.com/openastro/altaz/internal/hw/stepper"
	"github.com/openastro/altaz/internal/logic/motion"
	"github.com/openastro/altaz/internal/logic/proto"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	device := flag.String("device", "", "override serial device from config")
	stdio := flag.Bool("stdio", false, "serve the protocol on stdin/stdout instead of a serial port")
	mock := flag.Bool("mock", false, "force the mock GPIO driver")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *mock {
		cfg.Defaults.MockGPIO = true
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing stepper motors")
	stepDelay := cfg.StepDelay() / 2
	azMotor := stepper.NewStepper(gpioDriver, stepper.Config{
		Name:      "AZ",
		StepPin:   cfg.Azimuth.StepPin,
		DirPin:    cfg.Azimuth.DirPin,
		EnablePin: cfg.Azimuth.EnablePin,
		StepDelay: stepDelay,
	})
	debug.PrintStruct("Azimuth stepper config", cfg.Azimuth)
	altMotor := stepper.NewStepper(gpioDriver, stepper.Config{
		Name:      "ALT",
		StepPin:   cfg.Altitude.StepPin,
		DirPin:    cfg.Altitude.DirPin,
		EnablePin: cfg.Altitude.EnablePin,
		StepDelay: stepDelay,
	})
	debug.PrintStruct("Altitude stepper config", cfg.Altitude)

	debug.Step(3, "Creating motion controller")
	ctrl := motion.NewController(azMotor, altMotor,
		axisConfig(cfg.Azimuth), axisConfig(cfg.Altitude))
	debug.Value("AZ steps/deg", cfg.Azimuth.StepsPerDegree())
	debug.Value("ALT steps/deg", cfg.Altitude.StepsPerDegree())

	debug.Step(4, "Opening host link")
	var link *hostlink.Link
	if *stdio {
		link = hostlink.New(stdioStream{})
	} else {
		link, err = hostlink.OpenSerial(hostlink.SerialConfig{
			Device: cfg.Serial.Device,
			Baud:   cfg.Serial.Baud,
		})
		if err != nil {
			log.Fatalf("open host link failed: %v", err)
		}
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Printf("closing host link failed: %v", err)
		}
	}()

	interp := proto.NewInterpreter(ctrl, link)

	debug.Section("Ready")
	if err := runLoop(ctx, link, interp); err != nil {
		log.Fatalf("control loop: %v", err)
	}
}

// runLoop reads at most one command per iteration and handles it fully,
// motion included, before the next read. A silent host causes no
// action; the loop exits on context cancellation or when the host
// closes the link.
func runLoop(ctx context.Context, link *hostlink.Link, interp *proto.Interpreter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, ok, err := link.Poll()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read host link: %w", err)
		}
		if !ok {
			continue
		}

		if err := interp.Handle(line); err != nil {
			return fmt.Errorf("write host link: %w", err)
		}
	}
}

// axisConfig derives the motion parameters for one axis from its
// stepper configuration.
func axisConfig(sc config.StepperConfig) motion.AxisConfig {
	return motion.AxisConfig{
		StepsPerDegree: sc.StepsPerDegree(),
		LimitMinDeg:    sc.LimitMinDeg,
		LimitMaxDeg:    sc.LimitMaxDeg,
	}
}

// stdioStream serves the protocol on stdin/stdout for bench testing
// without a serial port.
type stdioStream struct{}

func (stdioStream) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioStream) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
