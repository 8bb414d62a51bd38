package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// StateMachines is the number of engines per sequencer block.
const StateMachines = 4

// Register layout of an RP2040 PIO block.
const (
	pioBase      = 0x5020_0000
	pioStride    = 0x0010_0000
	pioTxfOffset = 0x10
	pioRxfOffset = 0x20
)

// Sequencer models one PIO block with four state machines wired to a Chip.
//
// Sequencer is safe for concurrent use.
type Sequencer struct {
	mu sync.Mutex

	chip     *Chip
	instance uint8
	engines  [StateMachines]*Engine

	claims   int
	programs []hal.Program
	failNext int
}

// NewSequencer creates PIO block number instance driving chip.
func NewSequencer(chip *Chip, instance uint8) *Sequencer {
	return &Sequencer{chip: chip, instance: instance}
}

// FailClaims makes the next n claims fail as if the program did not fit.
func (s *Sequencer) FailClaims(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Claims returns the number of successful claims.
func (s *Sequencer) Claims() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

// Programs returns the programs claimed so far, in order.
func (s *Sequencer) Programs() []hal.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hal.Program(nil), s.programs...)
}

// Active returns the number of engines currently claimed.
func (s *Sequencer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.engines {
		if e != nil {
			n++
		}
	}
	return n
}

// Claim implements hal.Sequencer.
func (s *Sequencer) Claim(prog hal.Program, pins hal.PinConfig) (hal.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("pio%d: no program space for %v", s.instance, prog)
	}
	if prog.DataLines() == 0 {
		return nil, fmt.Errorf("pio%d: unknown program %d", s.instance, prog)
	}
	if pins.DataLines != prog.DataLines() {
		return nil, fmt.Errorf("pio%d: %v needs %d data lines, got %d",
			s.instance, prog, prog.DataLines(), pins.DataLines)
	}
	if pins.ClockDiv == 0 {
		return nil, fmt.Errorf("pio%d: zero clock divider", s.instance)
	}

	sm := -1
	for i, e := range s.engines {
		if e == nil {
			sm = i
			break
		}
	}
	if sm < 0 {
		return nil, fmt.Errorf("pio%d: no free state machine", s.instance)
	}

	e := &Engine{
		seq:  s,
		sm:   uint8(sm),
		prog: prog,
		pins: pins,
	}
	e.cond = sync.NewCond(&e.mu)
	s.engines[sm] = e
	s.claims++
	s.programs = append(s.programs, prog)

	pkg.LogDebug(pkg.ComponentSim, "state machine claimed",
		"pio", s.instance,
		"sm", sm,
		"program", prog.String())

	return e, nil
}

func (s *Sequencer) free(sm uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[sm] = nil
}

// engineAt resolves a FIFO register address to its claimed engine.
func (s *Sequencer) engineAt(f hal.FIFO) (*Engine, hal.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := hal.FIFO(pioBase + pioStride*uintptr(s.instance))
	for sm, e := range s.engines {
		if e == nil {
			continue
		}
		switch f {
		case base + pioTxfOffset + hal.FIFO(4*sm):
			return e, hal.DirectionTx, true
		case base + pioRxfOffset + hal.FIFO(4*sm):
			return e, hal.DirectionRx, true
		}
	}
	return nil, 0, false
}

// Engine models one claimed state machine running a program from the hal
// package. Transactions reach the chip as soon as they are complete and the
// engine is enabled.
type Engine struct {
	seq  *Sequencer
	sm   uint8
	prog hal.Program
	pins hal.PinConfig

	mu       sync.Mutex
	cond     *sync.Cond
	enabled  bool
	released bool
	tx       []byte   // quad programs: pending bus bytes
	words    []uint32 // single-line program: pending words
	rx       []uint32
	puts     int
}

// Program returns the program the engine runs.
func (e *Engine) Program() hal.Program {
	return e.prog
}

// Pins returns the pin configuration the engine was claimed with.
func (e *Engine) Pins() hal.PinConfig {
	return e.pins
}

// Enabled reports whether the engine is running.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Puts returns the number of words pushed with Put.
func (e *Engine) Puts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.puts
}

// SetEnabled implements hal.Engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
	e.run()
	e.cond.Broadcast()
}

// Put implements hal.Engine.
func (e *Engine) Put(word uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		e.seq.chip.mu.Lock()
		e.seq.chip.fault("put on released state machine %d", e.sm)
		e.seq.chip.mu.Unlock()
		return
	}
	e.puts++
	if e.prog == hal.ProgramSingleLine {
		e.words = append(e.words, word)
	} else {
		e.tx = append(e.tx, byte(word>>24))
	}
	e.run()
	e.cond.Broadcast()
}

// Get implements hal.Engine. It blocks while the RX FIFO is empty.
func (e *Engine) Get() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.rx) == 0 {
		e.cond.Wait()
	}
	w := e.rx[0]
	e.rx = e.rx[1:]
	return w
}

// TxFIFO implements hal.Engine.
func (e *Engine) TxFIFO() hal.FIFO {
	return hal.FIFO(pioBase+pioStride*uintptr(e.seq.instance)+pioTxfOffset) + hal.FIFO(4*e.sm)
}

// RxFIFO implements hal.Engine.
func (e *Engine) RxFIFO() hal.FIFO {
	return hal.FIFO(pioBase+pioStride*uintptr(e.seq.instance)+pioRxfOffset) + hal.FIFO(4*e.sm)
}

// DREQ implements hal.Engine. PIO0 TX0..3 are DREQ 0..3 and RX0..3 are
// 4..7; PIO1 follows at 8.
func (e *Engine) DREQ(dir hal.Direction) hal.DREQ {
	d := hal.DREQ(8*e.seq.instance + e.sm)
	if dir == hal.DirectionRx {
		d += 4
	}
	return d
}

// Release implements hal.Engine.
func (e *Engine) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	e.enabled = false
	e.tx, e.words = nil, nil
	e.mu.Unlock()

	e.seq.free(e.sm)
	pkg.LogDebug(pkg.ComponentSim, "state machine released",
		"pio", e.seq.instance,
		"sm", e.sm)
}

// feed appends bytes written to the TX FIFO by DMA. An 8-bit DMA write
// replicates the byte across the FIFO word, so the left-justified byte the
// program shifts out is the written byte.
func (e *Engine) feed(p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prog == hal.ProgramSingleLine {
		for _, b := range p {
			e.words = append(e.words, uint32(b)*0x0101_0101)
		}
	} else {
		e.tx = append(e.tx, p...)
	}
	e.run()
	e.cond.Broadcast()
}

// available reports whether n bytes can be pulled without blocking.
func (e *Engine) available(n int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rx) >= n
}

// pull blocks until len(p) bytes were read from the RX FIFO into p.
func (e *Engine) pull(p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range p {
		for len(e.rx) == 0 {
			e.cond.Wait()
		}
		p[i] = byte(e.rx[0])
		e.rx = e.rx[1:]
	}
}

// run executes every complete transaction pending in the TX FIFO. Caller
// holds e.mu.
func (e *Engine) run() {
	if !e.enabled {
		return
	}
	if e.prog == hal.ProgramSingleLine {
		e.runSingle()
		return
	}
	e.runQuad()
}

// runSingle consumes [write bits][read bits][byte]... words.
func (e *Engine) runSingle() {
	for len(e.words) >= 2 {
		writeBits := int(e.words[0] >> 24)
		readBits := int(e.words[1] >> 24)
		n := (writeBits + 7) / 8
		if len(e.words) < 2+n {
			return
		}
		tx := make([]byte, n)
		for i := range tx {
			tx[i] = byte(e.words[2+i] >> 24)
		}
		e.words = e.words[2+n:]

		for _, b := range e.seq.chip.transferSingle(tx, readBits/8) {
			e.rx = append(e.rx, uint32(b))
		}
	}
}

// runQuad consumes [write nibbles:16][read nibbles:16][bus bytes]... streams.
func (e *Engine) runQuad() {
	for len(e.tx) >= quadHeaderSize {
		writeNibbles := int(binary.BigEndian.Uint16(e.tx[0:2]))
		n := quadHeaderSize + (writeNibbles+1)/2
		if len(e.tx) < n {
			return
		}
		frame := e.tx[:n]
		e.tx = e.tx[n:]

		for _, b := range e.seq.chip.transferQuad(frame) {
			e.rx = append(e.rx, uint32(b))
		}
	}
}
