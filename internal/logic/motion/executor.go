package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/openastro/altaz/internal/debug"
	"github.com/openastro/altaz/internal/hw/stepper"
)

// Axis identifies one of the two mount axes.
type Axis int

const (
	Azimuth Axis = iota
	Altitude
)

func (a Axis) String() string {
	if a == Altitude {
		return "ALT"
	}
	return "AZ"
}

// Mode selects how a jog value is interpreted.
type Mode int

const (
	Absolute Mode = iota
	Relative
)

// MoveRequest is one parsed jog: built from a single command line,
// validated against soft limits and discarded. FeedRate is carried for
// protocol compatibility only and never affects pulse timing.
type MoveRequest struct {
	Axis         Axis
	Mode         Mode
	ValueDegrees float64
	FeedRate     float64
}

// ErrSoftLimit is returned when a requested target falls outside the
// axis travel window. The move is rejected with state untouched.
var ErrSoftLimit = errors.New("soft limit exceeded")

// AxisConfig holds the per-axis motion parameters derived from
// configuration at boot. StepsPerDegree is fixed for the process
// lifetime.
type AxisConfig struct {
	StepsPerDegree float64
	LimitMinDeg    float64
	LimitMaxDeg    float64
}

type axisState struct {
	position       float64 // logical degrees from the boot reference
	stepsPerDegree float64
	limitMin       float64
	limitMax       float64
	motor          *stepper.Stepper
}

// Controller owns all mutable motion state: the two axes' logical
// positions and the feed-hold flag. Everything runs on one thread of
// control, so no locking; the flag is polled once per pulse inside the
// same call chain that set the move going.
type Controller struct {
	azimuth  axisState
	altitude axisState
	feedHold bool
}

// NewController wires the two axis motors to their motion parameters.
// Both positions start at 0: the power-on attitude is the reference.
func NewController(azMotor, altMotor *stepper.Stepper, az, alt AxisConfig) *Controller {
	return &Controller{
		azimuth: axisState{
			stepsPerDegree: az.StepsPerDegree,
			limitMin:       az.LimitMinDeg,
			limitMax:       az.LimitMaxDeg,
			motor:          azMotor,
		},
		altitude: axisState{
			stepsPerDegree: alt.StepsPerDegree,
			limitMin:       alt.LimitMinDeg,
			limitMax:       alt.LimitMaxDeg,
			motor:          altMotor,
		},
	}
}

func (c *Controller) axis(a Axis) *axisState {
	if a == Altitude {
		return &c.altitude
	}
	return &c.azimuth
}

// Hold sets the feed-hold flag. An in-flight pulse train stops before
// its next pulse; pulses already sent are not undone. The flag never
// clears on its own.
func (c *Controller) Hold() {
	c.feedHold = true
	debug.Hold(true)
}

// Resume clears the feed-hold flag.
func (c *Controller) Resume() {
	c.feedHold = false
	debug.Hold(false)
}

// Holding reports the feed-hold flag.
func (c *Controller) Holding() bool {
	return c.feedHold
}

// Position returns the logical angle of one axis.
func (c *Controller) Position(a Axis) float64 {
	return c.axis(a).position
}

// Positions returns both logical angles, azimuth first.
func (c *Controller) Positions() (az, alt float64) {
	return c.azimuth.position, c.altitude.position
}

// Reset zeroes both logical positions without moving anything: the
// current attitude becomes the new reference.
func (c *Controller) Reset() {
	c.azimuth.position = 0
	c.altitude.position = 0
	debug.Info("Logical positions reset to 0")
}

// Target computes the angle a request resolves to and validates it
// against the axis soft limits. State is never modified.
func (c *Controller) Target(req MoveRequest) (float64, error) {
	ax := c.axis(req.Axis)
	target := req.ValueDegrees
	if req.Mode == Relative {
		target = ax.position + req.ValueDegrees
	}
	if target < ax.limitMin || target > ax.limitMax {
		return 0, fmt.Errorf("%w: %s target %.3f outside [%.3f, %.3f]",
			ErrSoftLimit, req.Axis, target, ax.limitMin, ax.limitMax)
	}
	return target, nil
}

// Apply executes one move: resolve the target, convert the delta to a
// pulse count, drive the pulse train. The loop polls the feed-hold flag
// before every pulse and abandons the move as soon as it is set.
//
// Bookkeeping quirk, kept on purpose: after the loop the logical
// position advances by the full requested delta even when feed-hold cut
// the pulse train short, so the reported position can lead the
// mechanical one after an interrupted move. Host software expects this
// and re-references with an absolute jog after a resume.
func (c *Controller) Apply(req MoveRequest) error {
	ax := c.axis(req.Axis)

	target, err := c.Target(req)
	if err != nil {
		return err
	}

	delta := target - ax.position
	pulses := int(math.Round(delta * ax.stepsPerDegree))
	debug.Verbose("%s: target=%.3f delta=%.3f pulses=%d", req.Axis, target, delta, pulses)

	if pulses == 0 {
		// No physical motion; snap to the target so repeated sub-pulse
		// jogs cannot accumulate rounding drift.
		ax.position = target
		return nil
	}

	forward := pulses > 0
	direction := "forward"
	if !forward {
		direction = "backward"
		pulses = -pulses
	}

	if err := ax.motor.SetDirection(forward); err != nil {
		return err
	}
	debug.Move(ax.motor.Name(), pulses, direction)

	issued := 0
	for i := 0; i < pulses; i++ {
		if c.feedHold {
			debug.Live("Feed-hold: %s move stopped after %d/%d pulses", req.Axis, issued, pulses)
			break
		}
		if err := ax.motor.Pulse(); err != nil {
			return err
		}
		issued++
	}

	ax.position += delta
	return nil
}

// Home drives both axes back to 0 with one relative move each,
// azimuth first. Sequential, like every move on this controller.
func (c *Controller) Home() error {
	for _, a := range []Axis{Azimuth, Altitude} {
		req := MoveRequest{
			Axis:         a,
			Mode:         Relative,
			ValueDegrees: -c.axis(a).position,
		}
		if err := c.Apply(req); err != nil {
			return err
		}
	}
	return nil
}
