package psram

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// ClockDivisor is the ratio of the system clock to the bus clock.
type ClockDivisor uint8

// Supported divisors, one per quad program variant.
const (
	Divisor2 ClockDivisor = 2
	Divisor4 ClockDivisor = 4
)

// divisors lists the candidates in the order they are tried.
var divisors = [...]ClockDivisor{Divisor2, Divisor4}

// Frequency returns the bus clock produced from system.
func (d ClockDivisor) Frequency(system physic.Frequency) physic.Frequency {
	if d == 0 {
		return 0
	}
	return system / physic.Frequency(d)
}

// Program returns the quad program variant that runs at this divisor.
func (d ClockDivisor) Program() hal.Program {
	if d == Divisor4 {
		return hal.ProgramQuadDiv4
	}
	return hal.ProgramQuadDiv2
}

// String returns e.g. "/2".
func (d ClockDivisor) String() string {
	return "/" + strconv.Itoa(int(d))
}

// SelectDivisor returns the smallest supported divisor that keeps the bus at
// or below maxClock. minClock is not searched: it is checked against the
// chosen divisor only, and a violation is reported the same way as an
// unreachable ceiling.
func SelectDivisor(system, maxClock, minClock physic.Frequency) (ClockDivisor, error) {
	for _, d := range divisors {
		// system/d <= max, without truncating the quotient.
		if system > maxClock*physic.Frequency(d) {
			continue
		}
		if system < minClock*physic.Frequency(d) {
			return 0, fmt.Errorf("%w: %s%s = %s is below the device minimum %s",
				pkg.ErrNoSuitableDivisor, system, d, d.Frequency(system), minClock)
		}
		pkg.LogDebug(pkg.ComponentClock, "divisor selected",
			"system", system.String(),
			"divisor", int(d),
			"bus", d.Frequency(system).String())
		return d, nil
	}
	return 0, fmt.Errorf("%w: %s exceeds %s at every divisor",
		pkg.ErrNoSuitableDivisor, system, maxClock)
}
