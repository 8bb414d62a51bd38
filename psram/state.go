package psram

// LinkState is the protocol mode of the bus.
type LinkState uint8

// Link states, in bring-up order. StateFaulted is terminal.
const (
	StateUninitialized LinkState = iota
	StateSingleLineBootstrap
	StateIdentified
	StateQuadLineActive
	StateFaulted
)

// String returns a human-readable state name.
func (s LinkState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSingleLineBootstrap:
		return "single-line-bootstrap"
	case StateIdentified:
		return "identified"
	case StateQuadLineActive:
		return "quad-line-active"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}
