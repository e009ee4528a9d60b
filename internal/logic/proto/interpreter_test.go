package proto

import (
	"strings"
	"testing"
	"time"

	"github.com/openastro/altaz/internal/hw/gpio"
	"github.com/openastro/altaz/internal/hw/stepper"
	"github.com/openastro/altaz/internal/logic/motion"
)

// replyRecorder captures reply lines in order.
type replyRecorder struct {
	lines []string
}

func (r *replyRecorder) WriteLine(s string) error {
	r.lines = append(r.lines, s)
	return nil
}

// countingDriver counts rising edges per pin.
type countingDriver struct {
	highs map[int]int
}

func (d *countingDriver) SetupPin(pin int, mode gpio.PinMode) error { return nil }

func (d *countingDriver) WritePin(pin int, level gpio.Level) error {
	if level == gpio.High {
		if d.highs == nil {
			d.highs = make(map[int]int)
		}
		d.highs[pin]++
	}
	return nil
}

func (d *countingDriver) ReadPin(pin int) (gpio.Level, error) { return gpio.Low, nil }
func (d *countingDriver) Close() error                        { return nil }

const (
	azStepPin  = 17
	altStepPin = 23
)

// newTestInterpreter wires an interpreter to a controller with
// 10 pulses per degree and ±15° limits.
func newTestInterpreter() (*Interpreter, *motion.Controller, *replyRecorder, *countingDriver) {
	drv := &countingDriver{}
	az := stepper.NewStepper(drv, stepper.Config{
		Name: "AZ", StepPin: azStepPin, DirPin: 27, StepDelay: time.Microsecond,
	})
	alt := stepper.NewStepper(drv, stepper.Config{
		Name: "ALT", StepPin: altStepPin, DirPin: 24, StepDelay: time.Microsecond,
	})
	cfg := motion.AxisConfig{StepsPerDegree: 10, LimitMinDeg: -15, LimitMaxDeg: 15}
	ctrl := motion.NewController(az, alt, cfg, cfg)
	rec := &replyRecorder{}
	return NewInterpreter(ctrl, rec), ctrl, rec, drv
}

func assertReplies(t *testing.T, rec *replyRecorder, want ...string) {
	t.Helper()
	if len(rec.lines) != len(want) {
		t.Fatalf("got %d replies %q, want %d %q", len(rec.lines), rec.lines, len(want), want)
	}
	for i := range want {
		if rec.lines[i] != want[i] {
			t.Errorf("reply[%d] = %q, want %q", i, rec.lines[i], want[i])
		}
	}
}

func TestHandle_StatusPoll(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("?"); err != nil {
		t.Fatal(err)
	}
	assertReplies(t, rec, "<Idle|MPos:0.000,0.000,0>")
}

func TestHandle_HoldAndResume(t *testing.T) {
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("!"); err != nil {
		t.Fatal(err)
	}
	if !ctrl.Holding() {
		t.Error("! should set feed-hold")
	}
	if err := in.Handle("?"); err != nil {
		t.Fatal(err)
	}
	if err := in.Handle("~"); err != nil {
		t.Fatal(err)
	}
	if ctrl.Holding() {
		t.Error("~ should clear feed-hold")
	}
	assertReplies(t, rec, "ok", "<Hold|MPos:0.000,0.000,0>", "ok")
}

func TestHandle_Unlock(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("$X"); err != nil {
		t.Fatal(err)
	}
	assertReplies(t, rec, "ok")
}

func TestHandle_AbsoluteJog(t *testing.T) {
	in, ctrl, rec, drv := newTestInterpreter()

	if err := in.Handle("$J=G53X5.0F100"); err != nil {
		t.Fatal(err)
	}

	assertReplies(t, rec,
		"ok",
		"<Jog|MPos:0.000,0.000,0>",
		"<Idle|MPos:5.000,0.000,0>",
	)
	if got := ctrl.Position(motion.Azimuth); got != 5.0 {
		t.Errorf("azimuth = %g, want 5.0", got)
	}
	if drv.highs[azStepPin] != 50 {
		t.Errorf("pulses = %d, want 50", drv.highs[azStepPin])
	}
}

func TestHandle_RelativeJogWithUnitWord(t *testing.T) {
	in, ctrl, _, _ := newTestInterpreter()

	if err := in.Handle("$J=G91G21Y-1.5F50"); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Position(motion.Altitude); got != -1.5 {
		t.Errorf("altitude = %g, want -1.5", got)
	}
}

func TestHandle_JogWithSpaces(t *testing.T) {
	in, ctrl, _, _ := newTestInterpreter()

	if err := in.Handle("$J=G91 G21 X0.5 F10"); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Position(motion.Azimuth); got != 0.5 {
		t.Errorf("azimuth = %g, want 0.5", got)
	}
}

func TestHandle_JogShortPrefix(t *testing.T) {
	in, ctrl, _, _ := newTestInterpreter()

	if err := in.Handle("J=G91X1.0F10"); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Position(motion.Azimuth); got != 1.0 {
		t.Errorf("azimuth = %g, want 1.0", got)
	}
}

func TestHandle_JogSoftLimit(t *testing.T) {
	in, ctrl, rec, drv := newTestInterpreter()

	if err := in.Handle("$J=G53X20.0F100"); err != nil {
		t.Fatal(err)
	}

	if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "error:") {
		t.Fatalf("expected single error reply, got %q", rec.lines)
	}
	if got := ctrl.Position(motion.Azimuth); got != 0 {
		t.Errorf("rejected jog moved position to %g", got)
	}
	if drv.highs[azStepPin] != 0 {
		t.Errorf("rejected jog emitted %d pulses", drv.highs[azStepPin])
	}
}

func TestHandle_JogGrammarErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"missing_mode", "$J=X5.0F100"},
		{"bad_axis", "$J=G91Z5.0F100"},
		{"missing_feed", "$J=G91X5.0"},
		{"empty_value", "$J=G91XF100"},
		{"bad_value", "$J=G91Xa.bF100"},
		{"bad_feed", "$J=G91X5.0Fzz"},
		{"empty_body", "$J="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, ctrl, rec, drv := newTestInterpreter()

			if err := in.Handle(tc.line); err != nil {
				t.Fatal(err)
			}
			if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "error:") {
				t.Fatalf("expected single error reply, got %q", rec.lines)
			}
			az, alt := ctrl.Positions()
			if az != 0 || alt != 0 {
				t.Errorf("malformed jog moved position to (%g, %g)", az, alt)
			}
			if drv.highs[azStepPin] != 0 || drv.highs[altStepPin] != 0 {
				t.Error("malformed jog emitted pulses")
			}
		})
	}
}

func TestHandle_JogWhileHolding(t *testing.T) {
	in, ctrl, rec, drv := newTestInterpreter()

	if err := in.Handle("!"); err != nil {
		t.Fatal(err)
	}
	if err := in.Handle("$J=G91X2.0F10"); err != nil {
		t.Fatal(err)
	}

	// Held move: zero pulses, but reported position advances by the
	// full requested delta and the frames show the Hold state.
	assertReplies(t, rec,
		"ok",
		"ok",
		"<Hold|MPos:0.000,0.000,0>",
		"<Hold|MPos:2.000,0.000,0>",
	)
	if drv.highs[azStepPin] != 0 {
		t.Errorf("held jog emitted %d pulses", drv.highs[azStepPin])
	}
	if got := ctrl.Position(motion.Azimuth); got != 2.0 {
		t.Errorf("position = %g, want 2.0", got)
	}
}

func TestHandle_LegacyJog(t *testing.T) {
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("AZ:+0.5"); err != nil {
		t.Fatal(err)
	}

	assertReplies(t, rec, "BUSY", "OK", "<Idle|MPos:0.500,0.000,0>")
	if got := ctrl.Position(motion.Azimuth); got != 0.5 {
		t.Errorf("azimuth = %g, want 0.5", got)
	}
}

func TestHandle_LegacyJogAltitude(t *testing.T) {
	in, ctrl, _, _ := newTestInterpreter()

	if err := in.Handle("ALT:-0.25"); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Position(motion.Altitude); got != -0.25 {
		t.Errorf("altitude = %g, want -0.25", got)
	}
}

func TestHandle_LegacyJogNoColon(t *testing.T) {
	// Older host clients send the delta right after the axis name,
	// without a colon.
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("AZ+0.5"); err != nil {
		t.Fatal(err)
	}

	assertReplies(t, rec, "BUSY", "OK", "<Idle|MPos:0.500,0.000,0>")
	if got := ctrl.Position(motion.Azimuth); got != 0.5 {
		t.Errorf("azimuth = %g, want 0.5", got)
	}

	rec.lines = nil
	if err := in.Handle("ALT-0.25"); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Position(motion.Altitude); got != -0.25 {
		t.Errorf("altitude = %g, want -0.25", got)
	}
}

func TestHandle_LegacyJogZeroDelta(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("AZ:0"); err != nil {
		t.Fatal(err)
	}
	// No BUSY for a zero delta.
	assertReplies(t, rec, "OK", "<Idle|MPos:0.000,0.000,0>")
}

func TestHandle_LegacyJogBadDelta(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("AZ:abc"); err != nil {
		t.Fatal(err)
	}
	if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "error:") {
		t.Fatalf("expected single error reply, got %q", rec.lines)
	}
}

func TestHandle_LegacyJogSoftLimit(t *testing.T) {
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("ALT:-20.0"); err != nil {
		t.Fatal(err)
	}
	if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "error:") {
		t.Fatalf("expected single error reply, got %q", rec.lines)
	}
	if got := ctrl.Position(motion.Altitude); got != 0 {
		t.Errorf("position = %g, want 0", got)
	}
}

func TestHandle_Reset(t *testing.T) {
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("$J=G53X5.0F100"); err != nil {
		t.Fatal(err)
	}
	rec.lines = nil

	if err := in.Handle("RST"); err != nil {
		t.Fatal(err)
	}
	first := append([]string(nil), rec.lines...)
	assertReplies(t, rec, "OK", "<Idle|MPos:0.000,0.000,0>")

	az, alt := ctrl.Positions()
	if az != 0 || alt != 0 {
		t.Errorf("positions after RST = (%g, %g)", az, alt)
	}

	// Idempotent: a second RST produces identical replies.
	rec.lines = nil
	if err := in.Handle("RST"); err != nil {
		t.Fatal(err)
	}
	if len(rec.lines) != len(first) {
		t.Fatalf("second RST replied %q, want %q", rec.lines, first)
	}
	for i := range first {
		if rec.lines[i] != first[i] {
			t.Errorf("second RST reply[%d] = %q, want %q", i, rec.lines[i], first[i])
		}
	}
}

func TestHandle_Home(t *testing.T) {
	in, ctrl, rec, drv := newTestInterpreter()

	if err := in.Handle("$J=G53X5.0F100"); err != nil {
		t.Fatal(err)
	}
	if err := in.Handle("$J=G53Y-4.0F100"); err != nil {
		t.Fatal(err)
	}
	rec.lines = nil
	drv.highs = nil

	if err := in.Handle("HOME"); err != nil {
		t.Fatal(err)
	}

	assertReplies(t, rec, "BUSY", "OK", "<Idle|MPos:0.000,0.000,0>")
	az, alt := ctrl.Positions()
	if az != 0 || alt != 0 {
		t.Errorf("positions after HOME = (%g, %g)", az, alt)
	}
	if drv.highs[azStepPin] != 50 || drv.highs[altStepPin] != 40 {
		t.Errorf("homing pulses = %d/%d, want 50/40", drv.highs[azStepPin], drv.highs[altStepPin])
	}
}

func TestHandle_PositionReport(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("$J=G53X5.0F100"); err != nil {
		t.Fatal(err)
	}
	rec.lines = nil

	if err := in.Handle("POS?"); err != nil {
		t.Fatal(err)
	}
	if err := in.Handle("STA?"); err != nil {
		t.Fatal(err)
	}
	assertReplies(t, rec, "AZ=5.000,ALT=0.000", "AZ=5.000,ALT=0.000")
}

func TestHandle_UnknownCommand(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	for _, line := range []string{"G0X1", "STATUS", "rst", "az:1.0"} {
		rec.lines = nil
		if err := in.Handle(line); err != nil {
			t.Fatal(err)
		}
		assertReplies(t, rec, "error: unknown command")
	}
}

func TestHandle_TrimsSurroundingWhitespace(t *testing.T) {
	in, _, rec, _ := newTestInterpreter()

	if err := in.Handle("  ?  "); err != nil {
		t.Fatal(err)
	}
	assertReplies(t, rec, "<Idle|MPos:0.000,0.000,0>")
}

// The full reference scenario: absolute azimuth jog to 5.0 is accepted,
// then a relative altitude jog of -20 is rejected by the ±15 limit.
func TestHandle_ReferenceScenario(t *testing.T) {
	in, ctrl, rec, _ := newTestInterpreter()

	if err := in.Handle("$J=G53X5.0F100"); err != nil {
		t.Fatal(err)
	}
	assertReplies(t, rec,
		"ok",
		"<Jog|MPos:0.000,0.000,0>",
		"<Idle|MPos:5.000,0.000,0>",
	)

	rec.lines = nil
	if err := in.Handle("$J=G91Y-20.0F100"); err != nil {
		t.Fatal(err)
	}
	if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "error:") {
		t.Fatalf("expected limit rejection, got %q", rec.lines)
	}

	az, alt := ctrl.Positions()
	if az != 5.0 || alt != 0 {
		t.Errorf("positions = (%g, %g), want (5, 0)", az, alt)
	}
}

func TestParseJog_FeedRateCaptured(t *testing.T) {
	req, err := parseJog("$J=G91X0.5F123.5")
	if err != nil {
		t.Fatal(err)
	}
	if req.FeedRate != 123.5 {
		t.Errorf("feed rate = %g, want 123.5", req.FeedRate)
	}
	if req.Mode != motion.Relative || req.Axis != motion.Azimuth || req.ValueDegrees != 0.5 {
		t.Errorf("parsed request = %+v", req)
	}
}
