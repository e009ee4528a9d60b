package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openastro/altaz/internal/debug"
	"github.com/openastro/altaz/internal/logic/motion"
)

// Replier writes one reply line to the host. *hostlink.Link satisfies it.
type Replier interface {
	WriteLine(s string) error
}

// Interpreter turns one command line into exactly one protocol action.
// Every recognized line is acknowledged; malformed input becomes an
// "error:" reply and never motion. Commands are handled fully, motion
// included, before the caller reads the next line.
type Interpreter struct {
	ctrl *motion.Controller
	out  Replier
}

func NewInterpreter(ctrl *motion.Controller, out Replier) *Interpreter {
	return &Interpreter{
		ctrl: ctrl,
		out:  out,
	}
}

// Handle dispatches one line. The returned error is a transport
// failure only; protocol-level problems are reported to the host and
// leave the controller ready for the next line. Matching is
// case-sensitive on the trimmed line.
func (in *Interpreter) Handle(line string) error {
	line = strings.TrimSpace(line)
	debug.Command(line)

	switch {
	case line == "?":
		return in.reply(in.restFrame())

	case line == "!":
		in.ctrl.Hold()
		return in.reply("ok")

	case line == "~":
		in.ctrl.Resume()
		return in.reply("ok")

	case line == "$X":
		// unlock: this controller has no alarm state, ack and move on
		return in.reply("ok")

	case strings.HasPrefix(line, "$J=") || strings.HasPrefix(line, "J="):
		return in.handleJog(line)

	case strings.HasPrefix(line, "ALT"):
		// legacy jog; the colon after the axis name is optional
		// (older host clients send "ALT+0.5" bare)
		return in.handleLegacyJog(motion.Altitude, strings.TrimPrefix(line[len("ALT"):], ":"))

	case strings.HasPrefix(line, "AZ"):
		return in.handleLegacyJog(motion.Azimuth, strings.TrimPrefix(line[len("AZ"):], ":"))

	case line == "RST":
		in.ctrl.Reset()
		if err := in.reply("OK"); err != nil {
			return err
		}
		return in.reply(in.restFrame())

	case line == "HOME":
		return in.handleHome()

	case line == "POS?" || line == "STA?":
		return in.reply(PositionReport(in.ctrl.Positions()))

	default:
		return in.reply("error: unknown command")
	}
}

// handleJog parses and runs a $J=/J= jog. The ack goes out before the
// blocking move, so validation (grammar and soft limits) happens first:
// a rejected jog replies with a single error line and nothing moves.
func (in *Interpreter) handleJog(line string) error {
	req, err := parseJog(line)
	if err != nil {
		return in.reply("error: " + err.Error())
	}
	if _, err := in.ctrl.Target(req); err != nil {
		return in.reply("error: " + err.Error())
	}

	if err := in.reply("ok"); err != nil {
		return err
	}
	if err := in.reply(in.movingFrame()); err != nil {
		return err
	}

	if err := in.ctrl.Apply(req); err != nil {
		return in.reply("error: " + err.Error())
	}
	return in.reply(in.restFrame())
}

// handleLegacyJog runs the spelled-out relative jog ("AZ:+0.5").
func (in *Interpreter) handleLegacyJog(axis motion.Axis, arg string) error {
	delta, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return in.reply(fmt.Sprintf("error: bad %s delta %q", axis, arg))
	}

	req := motion.MoveRequest{Axis: axis, Mode: motion.Relative, ValueDegrees: delta}
	if _, err := in.ctrl.Target(req); err != nil {
		return in.reply("error: " + err.Error())
	}

	if delta != 0 {
		if err := in.reply("BUSY"); err != nil {
			return err
		}
	}
	if err := in.ctrl.Apply(req); err != nil {
		return in.reply("error: " + err.Error())
	}
	if err := in.reply("OK"); err != nil {
		return err
	}
	return in.reply(in.restFrame())
}

// handleHome drives both axes back to the boot reference.
func (in *Interpreter) handleHome() error {
	if err := in.reply("BUSY"); err != nil {
		return err
	}
	if err := in.ctrl.Home(); err != nil {
		return in.reply("error: " + err.Error())
	}
	if err := in.reply("OK"); err != nil {
		return err
	}
	return in.reply(in.restFrame())
}

// restFrame renders the status frame for a controller at rest.
func (in *Interpreter) restFrame() string {
	state := StateIdle
	if in.ctrl.Holding() {
		state = StateHold
	}
	az, alt := in.ctrl.Positions()
	return Frame(state, az, alt)
}

// movingFrame renders the status frame emitted just before a jog runs.
func (in *Interpreter) movingFrame() string {
	state := StateJog
	if in.ctrl.Holding() {
		state = StateHold
	}
	az, alt := in.ctrl.Positions()
	return Frame(state, az, alt)
}

func (in *Interpreter) reply(s string) error {
	return in.out.WriteLine(s)
}

// parseJog scans the jog grammar:
//
//	($J=|J=) (G91|G53) [G21] <axis-letter><signed-float>F<float>
//
// Spaces between words are tolerated. X maps to azimuth, Y to
// altitude. The F feed value is captured into the request but has no
// effect on pulse timing; it exists for protocol compatibility.
func parseJog(line string) (motion.MoveRequest, error) {
	var req motion.MoveRequest

	body, ok := strings.CutPrefix(line, "$J=")
	if !ok {
		body, _ = strings.CutPrefix(line, "J=")
	}
	body = strings.ReplaceAll(body, " ", "")

	switch {
	case strings.HasPrefix(body, "G91"):
		req.Mode = motion.Relative
		body = body[len("G91"):]
	case strings.HasPrefix(body, "G53"):
		req.Mode = motion.Absolute
		body = body[len("G53"):]
	default:
		return req, errors.New("jog: missing G91/G53 mode word")
	}

	// optional unit word, accepted and ignored
	body = strings.TrimPrefix(body, "G21")

	if body == "" {
		return req, errors.New("jog: missing axis word")
	}
	switch body[0] {
	case 'X':
		req.Axis = motion.Azimuth
	case 'Y':
		req.Axis = motion.Altitude
	default:
		return req, fmt.Errorf("jog: unrecognized axis letter %q", string(body[0]))
	}
	body = body[1:]

	fIdx := strings.IndexByte(body, 'F')
	if fIdx < 0 {
		return req, errors.New("jog: missing F feed word")
	}

	value, err := strconv.ParseFloat(body[:fIdx], 64)
	if err != nil {
		return req, fmt.Errorf("jog: bad target value %q", body[:fIdx])
	}
	feed, err := strconv.ParseFloat(body[fIdx+1:], 64)
	if err != nil {
		return req, fmt.Errorf("jog: bad feed rate %q", body[fIdx+1:])
	}

	req.ValueDegrees = value
	req.FeedRate = feed
	return req, nil
}
