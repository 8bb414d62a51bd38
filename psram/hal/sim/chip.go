package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softpsram/pkg"
)

// ErrProtocol is recorded by the chip model when the controller violates the
// device protocol. Faults never stop the model; tests inspect [Chip.Faults].
var ErrProtocol = errors.New("sim: protocol violation")

// Device command set (APS6404L datasheet, Table 9).
const (
	cmdRead        = 0x03
	cmdWrite       = 0x02
	cmdQuadEnable  = 0x35
	cmdQuadWrite   = 0x38
	cmdResetEnable = 0x66
	cmdReset       = 0x99
	cmdReadID      = 0x9F
	cmdQuadRead    = 0xEB
	cmdQuadExit    = 0xF5
)

// quadReadWaitBytes is the six wait cycles of 0xEB in quad mode, one nibble
// per cycle.
const quadReadWaitBytes = 3

// quadHeaderSize is the two big-endian nibble counts preceding every quad
// transaction handed to the quad program.
const quadHeaderSize = 4

// ChipConfig describes the simulated part.
type ChipConfig struct {
	MFID byte // manufacturer id
	KGD  byte // known-good-die, 0x5D on a passing part
	EID  byte // first electronic id byte, encodes density
	// Size is the backing store in bytes. Addresses wrap modulo Size, as the
	// real part wraps at its density.
	Size int
	// QuadMode starts the chip in quad mode, as after a warm reboot of the
	// host without a power cycle.
	QuadMode bool
}

// DefaultChipConfig returns an 8 MiB APS6404L.
func DefaultChipConfig() ChipConfig {
	return ChipConfig{
		MFID: 0x0D,
		KGD:  0x5D,
		EID:  0x40,
		Size: 8 << 20,
	}
}

// Chip models a QSPI PSRAM: its mode register, reset latch and memory array.
type Chip struct {
	mu sync.Mutex

	cfg        ChipConfig
	mem        []byte
	quad       bool
	resetArmed bool
	resets     int

	frames [][]byte
	faults []error
}

// NewChip creates a chip from cfg. A zero Size selects 8 MiB.
func NewChip(cfg ChipConfig) *Chip {
	if cfg.Size <= 0 {
		cfg.Size = 8 << 20
	}
	return &Chip{
		cfg:  cfg,
		mem:  make([]byte, cfg.Size),
		quad: cfg.QuadMode,
	}
}

// Config returns the configuration the chip was built with.
func (c *Chip) Config() ChipConfig {
	return c.cfg
}

// QuadMode reports whether the chip currently expects quad transactions.
func (c *Chip) QuadMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quad
}

// Resets returns the number of completed reset-enable/reset sequences.
func (c *Chip) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Frames returns copies of every quad transaction received, header included,
// in arrival order.
func (c *Chip) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	for i, f := range c.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Faults returns the protocol violations observed so far.
func (c *Chip) Faults() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.faults...)
}

// ClearLog drops recorded frames and faults.
func (c *Chip) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
	c.faults = nil
}

// Peek copies memory at addr into p, bypassing the bus.
func (c *Chip) Peek(addr uint32, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range p {
		p[i] = c.mem[(int(addr)+i)%len(c.mem)]
	}
}

// Poke copies p into memory at addr, bypassing the bus.
func (c *Chip) Poke(addr uint32, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range p {
		c.mem[(int(addr)+i)%len(c.mem)] = b
	}
}

func (c *Chip) fault(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
	c.faults = append(c.faults, err)
	pkg.LogWarn(pkg.ComponentSim, "chip fault", "error", err)
}

// transferSingle runs one select-low period on a single data line: tx is
// shifted out, then rxLen bytes are shifted in.
func (c *Chip) transferSingle(tx []byte, rxLen int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	rx := make([]byte, rxLen)
	if len(tx) == 0 {
		return rx
	}
	if c.quad {
		// The part samples all four lines; single-line traffic is noise.
		for i := range rx {
			rx[i] = 0xFF
		}
		return rx
	}

	op := tx[0]
	armed := c.resetArmed
	c.resetArmed = false

	switch op {
	case cmdResetEnable:
		c.resetArmed = true
	case cmdReset:
		if !armed {
			c.fault("reset without reset-enable")
			break
		}
		c.quad = false
		c.resets++
	case cmdReadID:
		if len(tx) != 4 {
			c.fault("read-id with %d address bytes", len(tx)-1)
		}
		id := [...]byte{c.cfg.MFID, c.cfg.KGD, c.cfg.EID}
		copy(rx, id[:])
	case cmdQuadEnable:
		c.quad = true
	case cmdRead:
		if len(tx) < 4 {
			c.fault("read with %d address bytes", len(tx)-1)
			break
		}
		c.load(addr24(tx[1:4]), rx)
	case cmdWrite:
		if len(tx) < 4 {
			c.fault("write with %d address bytes", len(tx)-1)
			break
		}
		c.store(addr24(tx[1:4]), tx[4:])
	default:
		c.fault("unknown single-line opcode 0x%02X", op)
	}
	return rx
}

// transferQuad runs one quad transaction. frame carries the nibble-count
// header followed by the bytes driven onto the bus.
func (c *Chip) transferQuad(frame []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, append([]byte(nil), frame...))

	readNibbles := int(binary.BigEndian.Uint16(frame[2:4]))
	rx := make([]byte, (readNibbles+1)/2)
	body := frame[quadHeaderSize:]
	if len(body) == 0 {
		c.fault("empty quad transaction")
		return rx
	}
	if !c.quad {
		// A quad-exit clocked at a part already in single-line mode reads as
		// an unknown opcode and is ignored by the device.
		if body[0] != cmdQuadExit {
			c.fault("quad opcode 0x%02X in single-line mode", body[0])
		}
		for i := range rx {
			rx[i] = 0xFF
		}
		return rx
	}

	switch op := body[0]; op {
	case cmdQuadWrite:
		if len(body) < 4 {
			c.fault("quad write with %d address bytes", len(body)-1)
			break
		}
		if len(rx) != 0 {
			c.fault("quad write requests %d read nibbles", readNibbles)
		}
		c.store(addr24(body[1:4]), body[4:])
	case cmdQuadRead:
		if len(body) != 4+quadReadWaitBytes {
			c.fault("quad read with %d bytes before data, want %d",
				len(body)-1, 3+quadReadWaitBytes)
			break
		}
		c.load(addr24(body[1:4]), rx)
	case cmdQuadExit:
		c.quad = false
	default:
		c.fault("unknown quad opcode 0x%02X", op)
	}
	return rx
}

func (c *Chip) load(addr uint32, p []byte) {
	for i := range p {
		p[i] = c.mem[(int(addr)+i)%len(c.mem)]
	}
}

func (c *Chip) store(addr uint32, p []byte) {
	for i, b := range p {
		c.mem[(int(addr)+i)%len(c.mem)] = b
	}
}

func addr24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
