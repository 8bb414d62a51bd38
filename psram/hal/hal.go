package hal

import "time"

// Program identifies a sequencer program variant.
type Program uint8

// Sequencer program variants.
const (
	// ProgramSingleLine shifts one bit per clock out on the first data line and
	// in on the second. Used only while bootstrapping the device.
	ProgramSingleLine Program = iota
	// ProgramQuadDiv2 shifts a nibble per clock on four data lines with the
	// bus clock at half the system clock.
	ProgramQuadDiv2
	// ProgramQuadDiv4 is ProgramQuadDiv2 with the bus clock at a quarter of
	// the system clock.
	ProgramQuadDiv4
)

// String returns a human-readable program name.
func (p Program) String() string {
	switch p {
	case ProgramSingleLine:
		return "single-line"
	case ProgramQuadDiv2:
		return "quad/2"
	case ProgramQuadDiv4:
		return "quad/4"
	default:
		return "unknown"
	}
}

// DataLines returns the number of data lines the program drives.
func (p Program) DataLines() uint8 {
	switch p {
	case ProgramQuadDiv2, ProgramQuadDiv4:
		return 4
	case ProgramSingleLine:
		return 1
	default:
		return 0
	}
}

// Direction selects a FIFO of a sequencer engine.
type Direction uint8

// FIFO directions, from the engine's point of view.
const (
	DirectionTx Direction = iota // memory to pins
	DirectionRx                  // pins to memory
)

// String returns "tx" or "rx".
func (d Direction) String() string {
	if d == DirectionRx {
		return "rx"
	}
	return "tx"
}

// FIFO is the bus address of an engine FIFO register, the fixed end of a DMA
// transfer.
type FIFO uintptr

// DREQ identifies a hardware data-request signal that paces a DMA channel.
type DREQ uint8

// PinConfig describes the pins handed to a sequencer program.
//
// The pins must be electrically configured (fast slew, 12 mA drive, input
// hysteresis disabled on the data lines) before the program is claimed.
type PinConfig struct {
	Select   uint8 // chip select, first side-set pin
	Clock    uint8 // bus clock, second side-set pin
	DataBase uint8 // first of the data lines
	// DataLines is 1 for the single-line program (out on DataBase, in on
	// DataBase+1) and 4 for the quad programs.
	DataLines uint8
	// ClockDiv is the sequencer's own clock divider, applied on top of the
	// program's cycles per bus clock.
	ClockDiv uint16
}

// Sequencer claims programmable bit-level engines.
type Sequencer interface {
	// Claim loads prog, claims a free engine, binds it to pins and
	// initializes it disabled. An error means the engine or the
	// configuration was rejected.
	Claim(prog Program, pins PinConfig) (Engine, error)
}

// Engine is one claimed sequencer instance.
type Engine interface {
	// SetEnabled starts or stops the engine.
	SetEnabled(enabled bool)

	// Put blocks until the TX FIFO has room, then pushes word. Payload bytes
	// are left-justified (bits 31..24).
	Put(word uint32)

	// Get blocks until the RX FIFO holds a word and returns it. Received
	// bytes are right-justified (bits 7..0).
	Get() uint32

	// TxFIFO returns the address DMA writes to.
	TxFIFO() FIFO

	// RxFIFO returns the address DMA reads from.
	RxFIFO() FIFO

	// DREQ returns the data-request signal for the FIFO in direction dir.
	DREQ(dir Direction) DREQ

	// Release disables the engine, unloads its program and frees it.
	Release()
}

// TransferSize is the width of one DMA unit.
type TransferSize uint8

// DMA unit widths.
const (
	TransferSize8  TransferSize = 1
	TransferSize16 TransferSize = 2
	TransferSize32 TransferSize = 4
)

// ChannelConfig configures a DMA channel for a FIFO transfer.
type ChannelConfig struct {
	Size           TransferSize
	ReadIncrement  bool // advance the source address after each unit
	WriteIncrement bool // advance the destination address after each unit
	HighPriority   bool
	DREQ           DREQ
	// FIFO is the fixed peripheral end: the destination of StartFromBuffer
	// or the source of StartToBuffer.
	FIFO FIFO
}

// DMA claims DMA channels.
type DMA interface {
	Claim() (Channel, error)
}

// Channel is one claimed DMA channel.
type Channel interface {
	// Configure applies cfg. It takes effect on the next start.
	Configure(cfg ChannelConfig)

	// StartFromBuffer starts moving p into the configured FIFO.
	StartFromBuffer(p []byte)

	// StartToBuffer starts filling p from the configured FIFO.
	StartToBuffer(p []byte)

	// Busy reports whether the last started transfer is still running.
	Busy() bool

	// Wait blocks until the last started transfer completes. There is no
	// timeout: a stalled pacing signal blocks forever.
	Wait()

	// Release aborts any transfer and frees the channel.
	Release()
}

// Prioritizer is implemented by DMA capabilities that can raise DMA above
// the processors in bus arbitration.
type Prioritizer interface {
	SetDMAPriority(high bool)
}

// Timer provides the fixed waits of the bring-up handshake.
type Timer interface {
	Delay(d time.Duration)
}

// SleepTimer implements Timer with [time.Sleep].
type SleepTimer struct{}

// Delay sleeps for d.
func (SleepTimer) Delay(d time.Duration) {
	time.Sleep(d)
}
