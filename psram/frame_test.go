package psram

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ardnew/softpsram/pkg"
)

func TestFramerWrite(t *testing.T) {
	f := NewFramer(8 << 20)

	got, err := f.Write(0x123456, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := []byte{
		0x00, 0x0C, // (opcode + 3 address + 2 payload) * 2 nibbles
		0x00, 0x00,
		OpQuadWrite,
		0x12, 0x34, 0x56,
		0xAA, 0xBB,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Write() = % X, want % X", got, want)
	}
}

func TestFramerRead(t *testing.T) {
	f := NewFramer(8 << 20)

	// Dirty the filler bytes first; a read frame must clear them.
	f.Write(0, []byte{1, 2, 3, 4})

	got, err := f.Read(0x7FFFF0, MaxPayload/64)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := []byte{
		0x00, 0x0E, // (opcode + 3 address + 3 wait) * 2 nibbles
		0x00, 0x20, // 16 bytes * 2 nibbles
		OpQuadRead,
		0x7F, 0xFF, 0xF0,
		0x00, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Read() = % X, want % X", got, want)
	}
}

func TestFramerMaxPayload(t *testing.T) {
	f := NewFramer(8 << 20)

	payload := bytes.Repeat([]byte{0x5A}, MaxPayload)
	frame, err := f.Write(0, payload)
	if err != nil {
		t.Fatalf("Write(MaxPayload) error = %v", err)
	}
	if len(frame) != FrameHeaderSize+MaxPayload {
		t.Errorf("frame length = %d, want %d", len(frame), FrameHeaderSize+MaxPayload)
	}
	if n := binary.BigEndian.Uint16(frame[0:2]); n != 2*(4+MaxPayload) {
		t.Errorf("write nibbles = %d", n)
	}

	frame, _ = f.Read(0, MaxPayload)
	if n := binary.BigEndian.Uint16(frame[2:4]); n != 2*MaxPayload {
		t.Errorf("read nibbles = %d", n)
	}
}

func TestFramerCheck(t *testing.T) {
	const capacity = 1 << 20

	tests := []struct {
		name    string
		addr    uint32
		n       int
		wantErr error
	}{
		{"first byte", 0, 1, nil},
		{"last byte", capacity - 1, 1, nil},
		{"ends at capacity", capacity - 64, 64, nil},
		{"one past end", capacity - 1, 2, pkg.ErrAddressOutOfRange},
		{"start past end", capacity, 1, pkg.ErrAddressOutOfRange},
		{"far past end", 0xFFFFFFFF, 1, pkg.ErrAddressOutOfRange},
		{"oversized and past end", capacity - 1, MaxPayload + 1, pkg.ErrAddressOutOfRange},
		{"oversized", 0, MaxPayload + 1, pkg.ErrPayloadTooLarge},
		{"zero length", 0, 0, pkg.ErrInvalidParameter},
		{"negative length", 0, -1, pkg.ErrAddressOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(capacity)
			if err := f.check(tt.addr, tt.n); !errors.Is(err, tt.wantErr) {
				t.Errorf("check(0x%X, %d) error = %v, want %v", tt.addr, tt.n, err, tt.wantErr)
			}
		})
	}
}

func TestFramerUninitialized(t *testing.T) {
	f := NewFramer(0)
	if _, err := f.Write(0, []byte{1}); !errors.Is(err, pkg.ErrAddressOutOfRange) {
		t.Errorf("Write() on empty device error = %v", err)
	}
	f.SetCapacity(16)
	if f.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", f.Capacity())
	}
	if _, err := f.Write(15, []byte{1}); err != nil {
		t.Errorf("Write() after SetCapacity error = %v", err)
	}
}

func TestCommand(t *testing.T) {
	want := []byte{0x00, 0x02, 0x00, 0x00, OpQuadExit}
	if got := Command(OpQuadExit); !bytes.Equal(got, want) {
		t.Errorf("Command() = % X, want % X", got, want)
	}
}

func TestScalarCodec(t *testing.T) {
	var b [8]byte

	if got := putScalar(b[:], uint8(0xA5)); !bytes.Equal(got, []byte{0xA5}) {
		t.Errorf("putScalar(uint8) = % X", got)
	}

	p := putScalar(b[:], uint16(0xBEEF))
	if len(p) != 2 || binary.NativeEndian.Uint16(p) != 0xBEEF {
		t.Errorf("putScalar(uint16) = % X", p)
	}
	if scalar[uint16](p) != 0xBEEF {
		t.Errorf("scalar[uint16] = %#x", scalar[uint16](p))
	}

	p = putScalar(b[:], uint32(0xDEADBEEF))
	if len(p) != 4 || scalar[uint32](p) != 0xDEADBEEF {
		t.Errorf("uint32 codec = % X", p)
	}

	p = putScalar(b[:], uint64(0x0123456789ABCDEF))
	if len(p) != 8 || scalar[uint64](p) != 0x0123456789ABCDEF {
		t.Errorf("uint64 codec = % X", p)
	}

	putAddr(b[:], 0xFF123456)
	if !bytes.Equal(b[:3], []byte{0x12, 0x34, 0x56}) {
		t.Errorf("putAddr() = % X, want 12 34 56", b[:3])
	}
}
