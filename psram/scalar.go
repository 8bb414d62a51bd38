package psram

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Scalar payloads travel in host byte order, so a value written by one width
// helper reads back unchanged through the same helper on the same host.
// Addresses are always big-endian; see putAddr.

// sizeOf returns the encoded width of T in bytes.
func sizeOf[T constraints.Unsigned]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// putScalar encodes v into p in host byte order and returns the encoded
// prefix of p.
func putScalar[T constraints.Unsigned](p []byte, v T) []byte {
	switch sizeOf[T]() {
	case 1:
		p[0] = byte(v)
		return p[:1]
	case 2:
		binary.NativeEndian.PutUint16(p, uint16(v))
		return p[:2]
	case 4:
		binary.NativeEndian.PutUint32(p, uint32(v))
		return p[:4]
	default:
		binary.NativeEndian.PutUint64(p, uint64(v))
		return p[:8]
	}
}

// scalar decodes a T from p in host byte order.
func scalar[T constraints.Unsigned](p []byte) T {
	switch sizeOf[T]() {
	case 1:
		return T(p[0])
	case 2:
		return T(binary.NativeEndian.Uint16(p))
	case 4:
		return T(binary.NativeEndian.Uint32(p))
	default:
		return T(binary.NativeEndian.Uint64(p))
	}
}

// putAddr encodes the low 24 bits of addr big-endian into p[0:3].
func putAddr(p []byte, addr uint32) {
	_ = p[2]
	p[0] = byte(addr >> 16)
	p[1] = byte(addr >> 8)
	p[2] = byte(addr)
}
