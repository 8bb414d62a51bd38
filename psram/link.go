package psram

import (
	"fmt"
	"time"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// Bring-up delays, from the APS6404L power-up and reset timing.
const (
	PowerOnDelay     = 150 * time.Microsecond // tPU
	ResetEnableDelay = 10 * time.Microsecond  // reset-enable to reset
	ResetDelay       = 150 * time.Microsecond // tRST
	QuadEnableDelay  = 2 * time.Microsecond   // read-ID to quad-enable
	SettleDelay      = 10 * time.Microsecond  // quad-enable to teardown
)

// Sequencer clock dividers. The single-line program runs at half speed so the
// bootstrap stays within the device's SPI read timing at any system clock.
const (
	singleLineClockDiv = 2
	quadClockDiv       = 1
)

// readIDResponse is MFID, KGD, EID and three further ID bytes.
const readIDResponse = 6

// LinkManager runs the bring-up protocol and owns the quad-line engine once
// it is active.
//
// LinkManager is not safe for concurrent use.
type LinkManager struct {
	cfg     Config
	seq     hal.Sequencer
	timer   hal.Timer
	divisor ClockDivisor

	state  LinkState
	id     Identity
	engine hal.Engine
}

// NewLinkManager returns a link manager that will claim engines from seq
// using the pins of cfg and the quad program selected by divisor.
func NewLinkManager(cfg Config, seq hal.Sequencer, divisor ClockDivisor) *LinkManager {
	timer := cfg.Timer
	if timer == nil {
		timer = hal.SleepTimer{}
	}
	return &LinkManager{
		cfg:     cfg,
		seq:     seq,
		timer:   timer,
		divisor: divisor,
	}
}

// State returns the current link state.
func (m *LinkManager) State() LinkState {
	return m.state
}

// Identity returns the identity read by the last successful bring-up.
func (m *LinkManager) Identity() Identity {
	return m.id
}

// Engine returns the quad-line engine, or nil unless the link is active.
func (m *LinkManager) Engine() hal.Engine {
	return m.engine
}

// BringUp takes the device from power-up, or from any previous mode, to
// quad-line operation and returns its identity and the enabled quad engine.
//
// An active link is torn down and brought up again, always starting with a
// quad-exit command. Any failure leaves the link in StateFaulted, after which
// BringUp returns ErrControllerFaulted.
func (m *LinkManager) BringUp() (Identity, hal.Engine, error) {
	if m.state == StateFaulted {
		return Identity{}, nil, pkg.ErrControllerFaulted
	}

	// A device we left in quad mode needs the quad-exit whatever the config.
	restart := m.engine != nil
	if restart {
		pkg.LogInfo(pkg.ComponentLink, "restarting active link")
		m.Release()
	}

	if m.cfg.QuadExitPreamble || restart {
		if err := m.exitQuad(); err != nil {
			return Identity{}, nil, m.fail(err)
		}
	}

	single, err := m.claim(hal.ProgramSingleLine, singleLineClockDiv)
	if err != nil {
		return Identity{}, nil, m.fail(err)
	}
	single.SetEnabled(true)
	m.transition(StateSingleLineBootstrap)
	m.timer.Delay(PowerOnDelay)

	id, err := m.identify(single)
	single.SetEnabled(false)
	single.Release()
	if err != nil {
		return Identity{}, nil, m.fail(err)
	}
	m.id = id
	m.transition(StateIdentified)

	quad, err := m.claim(m.divisor.Program(), quadClockDiv)
	if err != nil {
		return Identity{}, nil, m.fail(err)
	}
	quad.SetEnabled(true)
	m.engine = quad
	m.transition(StateQuadLineActive)

	return id, quad, nil
}

// Fault moves the link to StateFaulted and releases the quad engine.
func (m *LinkManager) Fault() {
	m.releaseEngine()
	m.transition(StateFaulted)
}

// Release disables and frees the quad engine. A released active link returns
// to StateUninitialized; a faulted link stays faulted.
func (m *LinkManager) Release() {
	m.releaseEngine()
	if m.state != StateFaulted {
		m.transition(StateUninitialized)
	}
}

func (m *LinkManager) releaseEngine() {
	if m.engine == nil {
		return
	}
	m.engine.SetEnabled(false)
	m.engine.Release()
	m.engine = nil
}

func (m *LinkManager) fail(err error) error {
	m.Fault()
	pkg.LogError(pkg.ComponentLink, "bring-up failed", "error", err)
	return err
}

func (m *LinkManager) transition(to LinkState) {
	if m.state == to {
		return
	}
	pkg.LogDebug(pkg.ComponentLink, "link state",
		"from", m.state.String(),
		"to", to.String())
	m.state = to
}

func (m *LinkManager) claim(prog hal.Program, div uint16) (hal.Engine, error) {
	e, err := m.seq.Claim(prog, m.cfg.pins(prog.DataLines(), div))
	if err != nil {
		return nil, fmt.Errorf("%w: %s program on sequencer %d: %w",
			pkg.ErrEngineInitFailed, prog, m.cfg.Sequencer, err)
	}
	return e, nil
}

// exitQuad clocks a quad-exit command with the quad program. A device
// already in single-line mode ignores it.
func (m *LinkManager) exitQuad() error {
	e, err := m.claim(m.divisor.Program(), quadClockDiv)
	if err != nil {
		return err
	}
	e.SetEnabled(true)
	m.timer.Delay(PowerOnDelay)
	for _, b := range Command(OpQuadExit) {
		e.Put(uint32(b) << 24)
	}
	e.SetEnabled(false)
	e.Release()
	pkg.LogDebug(pkg.ComponentLink, "quad-exit preamble sent")
	return nil
}

// identify resets the device, reads its ID and, if it is a good die, switches
// it to quad mode.
func (m *LinkManager) identify(e hal.Engine) (Identity, error) {
	send(e, 0, OpResetEnable)
	m.timer.Delay(ResetEnableDelay)
	send(e, 0, OpReset)
	m.timer.Delay(ResetDelay)

	send(e, readIDResponse, OpReadID, 0xFF, 0xFF, 0xFF)
	var rx [readIDResponse]byte
	for i := range rx {
		rx[i] = byte(e.Get())
	}
	id := Identity{
		MFID:     rx[0],
		KGD:      rx[1],
		EID:      rx[2],
		Capacity: DecodeCapacity(rx[2]),
	}
	if id.KGD != KGDExpected {
		return id, fmt.Errorf("%w: kgd 0x%02X, want 0x%02X",
			pkg.ErrDeviceNotDetected, id.KGD, KGDExpected)
	}
	pkg.LogInfo(pkg.ComponentLink, "device identified",
		"mfid", id.MFID,
		"eid", id.EID,
		"capacity", id.Capacity)

	m.timer.Delay(QuadEnableDelay)
	send(e, 0, OpQuadEnable)
	m.timer.Delay(SettleDelay)
	return id, nil
}

// send pushes one single-line transaction: the bit counts to shift out and in,
// then the bytes to shift out, each left-justified in its FIFO word.
func send(e hal.Engine, readBytes int, tx ...byte) {
	e.Put(uint32(8*len(tx)) << 24)
	e.Put(uint32(8*readBytes) << 24)
	for _, b := range tx {
		e.Put(uint32(b) << 24)
	}
}
