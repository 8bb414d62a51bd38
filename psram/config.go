package psram

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// MaxPin is the highest GPIO number a bus pin may use.
const MaxPin = 29

// Config describes one PSRAM bus. It is copied by [New] and never changed
// afterwards.
//
// The select, clock and four data pins must be configured for fast slew,
// 12 mA drive and, on the data lines, no input hysteresis before
// [Controller.Init] is called.
type Config struct {
	SelectPin   uint8 // chip select
	ClockPin    uint8 // bus clock
	DataPinBase uint8 // first of four consecutive data lines

	// Sequencer identifies the sequencer block the capability drives. It is
	// only reported in logs.
	Sequencer uint8

	SystemClock physic.Frequency // sequencer input clock
	MaxClock    physic.Frequency // device's rated maximum bus clock
	MinClock    physic.Frequency // device's minimum bus clock, 0 for none

	// Locker serializes transfers when several goroutines share the
	// controller. Nil selects a no-op locker.
	Locker sync.Locker

	// Timer provides the bring-up delays. Nil selects [hal.SleepTimer].
	Timer hal.Timer

	// QuadExitPreamble clocks a quad-exit command before the single-line
	// bootstrap, recovering a device left in quad mode by a warm reboot.
	QuadExitPreamble bool
}

// DefaultConfig returns the wiring of the reference board: select on GPIO 0,
// clock on GPIO 1, data on GPIO 2-5, a 150 MHz system clock and a 133 MHz
// device.
func DefaultConfig() Config {
	return Config{
		SelectPin:        0,
		ClockPin:         1,
		DataPinBase:      2,
		SystemClock:      150 * physic.MegaHertz,
		MaxClock:         133 * physic.MegaHertz,
		QuadExitPreamble: true,
	}
}

// validate rejects pin assignments that overlap or leave the GPIO range, and
// clocks that cannot describe a bus.
func (c *Config) validate() error {
	if int(c.DataPinBase)+3 > MaxPin {
		return fmt.Errorf("%w: data pins %d-%d exceed GPIO%d",
			pkg.ErrInvalidConfig, c.DataPinBase, int(c.DataPinBase)+3, MaxPin)
	}
	if c.SelectPin > MaxPin || c.ClockPin > MaxPin {
		return fmt.Errorf("%w: control pins %d/%d exceed GPIO%d",
			pkg.ErrInvalidConfig, c.SelectPin, c.ClockPin, MaxPin)
	}

	var used uint32
	pins := [...]uint8{
		c.SelectPin, c.ClockPin,
		c.DataPinBase, c.DataPinBase + 1, c.DataPinBase + 2, c.DataPinBase + 3,
	}
	for _, p := range pins {
		if used&(1<<p) != 0 {
			return fmt.Errorf("%w: GPIO%d assigned twice", pkg.ErrInvalidConfig, p)
		}
		used |= 1 << p
	}

	if c.SystemClock <= 0 || c.MaxClock <= 0 || c.MinClock < 0 {
		return fmt.Errorf("%w: clocks sys=%s max=%s min=%s",
			pkg.ErrInvalidConfig, c.SystemClock, c.MaxClock, c.MinClock)
	}
	return nil
}

// pins returns the pin set for a program driving lines data lines.
func (c *Config) pins(lines uint8, div uint16) hal.PinConfig {
	return hal.PinConfig{
		Select:    c.SelectPin,
		Clock:     c.ClockPin,
		DataBase:  c.DataPinBase,
		DataLines: lines,
		ClockDiv:  div,
	}
}

// noLock is the locker of single-caller controllers.
type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
