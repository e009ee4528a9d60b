package proto

import "fmt"

// Machine state tokens as they appear in status frames.
const (
	StateIdle = "Idle"
	StateJog  = "Jog"
	StateHold = "Hold"
)

// Frame renders the fixed status frame consumed by host software:
// opening marker, state token, both positions to three decimals with
// azimuth first, a literal 0 third coordinate, closing marker. The
// format is byte-for-byte stable; hosts parse it with fixed offsets.
func Frame(state string, az, alt float64) string {
	return fmt.Sprintf("<%s|MPos:%.3f,%.3f,0>", state, az, alt)
}

// PositionReport renders the compact POS?/STA? reply line.
func PositionReport(az, alt float64) string {
	return fmt.Sprintf("AZ=%.3f,ALT=%.3f", az, alt)
}
