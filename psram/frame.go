package psram

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softpsram/pkg"
)

// Device opcodes.
const (
	OpResetEnable = 0x66
	OpReset       = 0x99
	OpReadID      = 0x9F
	OpQuadEnable  = 0x35
	OpQuadWrite   = 0x38
	OpQuadRead    = 0xEB
	OpQuadExit    = 0xF5
)

// Frame geometry.
//
// A quad frame is laid out as
//
//	[0:2]  write nibble count, big-endian: opcode, address and payload or filler
//	[2:4]  read nibble count, big-endian: 0 for writes
//	[4]    opcode
//	[5:8]  address, big-endian
//	[8:]   payload, or QuadReadWaitBytes zero bytes for a read
//
// The quad program shifts out the write nibbles, turns the data lines around
// and shifts in the read nibbles.
const (
	FrameHeaderSize   = 8
	MaxPayload        = 1024
	QuadReadWaitBytes = 3 // six wait cycles of the quad read opcode

	// AddressLimit bounds the 24-bit address field.
	AddressLimit = 1 << 24
)

// Fixed transfer sizes of the block and page helpers.
const (
	BlockSize = 64
	PageSize  = 1024
)

// cmdBytes is the opcode and address, the part of a frame counted by both
// reads and writes.
const cmdBytes = 4

// Framer encodes transactions into a scratch buffer it owns. The returned
// frames alias that buffer and are valid until the next call.
//
// Framer is not safe for concurrent use.
type Framer struct {
	buf      [FrameHeaderSize + MaxPayload]byte
	capacity uint32
}

// NewFramer returns a framer for a device of capacity bytes.
func NewFramer(capacity uint32) *Framer {
	return &Framer{capacity: capacity}
}

// Capacity returns the address space the framer validates against.
func (f *Framer) Capacity() uint32 {
	return f.capacity
}

// SetCapacity changes the address space the framer validates against.
func (f *Framer) SetCapacity(capacity uint32) {
	f.capacity = capacity
}

// Write frames a quad write of payload at addr.
func (f *Framer) Write(addr uint32, payload []byte) ([]byte, error) {
	if err := f.check(addr, len(payload)); err != nil {
		return nil, err
	}
	n := copy(f.buf[FrameHeaderSize:], payload)
	f.header(OpQuadWrite, addr, cmdBytes+n, 0)
	return f.buf[:FrameHeaderSize+n], nil
}

// Read frames a quad read of length bytes at addr.
func (f *Framer) Read(addr uint32, length int) ([]byte, error) {
	if err := f.check(addr, length); err != nil {
		return nil, err
	}
	clear(f.buf[FrameHeaderSize : FrameHeaderSize+QuadReadWaitBytes])
	f.header(OpQuadRead, addr, cmdBytes+QuadReadWaitBytes, length)
	return f.buf[:FrameHeaderSize+QuadReadWaitBytes], nil
}

func (f *Framer) header(op byte, addr uint32, writeBytes, readBytes int) {
	binary.BigEndian.PutUint16(f.buf[0:2], uint16(2*writeBytes))
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(2*readBytes))
	f.buf[4] = op
	putAddr(f.buf[5:8], addr)
}

// check validates a transfer of n bytes at addr. The range is checked first
// so that every transfer past the end of the device reports
// ErrAddressOutOfRange.
func (f *Framer) check(addr uint32, n int) error {
	end := uint64(addr) + uint64(max(n, 0))
	if n < 0 || end > uint64(f.capacity) || end > AddressLimit {
		return fmt.Errorf("%w: [0x%06X, +%d) outside %d-byte device",
			pkg.ErrAddressOutOfRange, addr, n, f.capacity)
	}
	if n == 0 {
		return fmt.Errorf("%w: zero-length transfer", pkg.ErrInvalidParameter)
	}
	if n > MaxPayload {
		return fmt.Errorf("%w: %d bytes, limit %d", pkg.ErrPayloadTooLarge, n, MaxPayload)
	}
	return nil
}

// Command frames a bare opcode with no address or data, as clocked by the
// quad program.
func Command(op byte) []byte {
	f := make([]byte, 5)
	binary.BigEndian.PutUint16(f[0:2], 2)
	f[4] = op
	return f
}
