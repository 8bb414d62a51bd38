package mem

import (
	"fmt"
	"io"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram"
)

// Chunk is the largest transfer issued to a Device.
const Chunk = psram.MaxPayload

// Device is a flat byte-addressed memory that accepts transfers of up to
// Chunk bytes. *psram.Controller implements it.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// ReadAt fills p from d starting at off, one chunk at a time.
func ReadAt(d Device, p []byte, off int64) (int, error) {
	if err := bounds(d, off, int64(len(p))); err != nil {
		return 0, err
	}
	done := 0
	for done < len(p) {
		n := min(len(p)-done, Chunk)
		if _, err := d.ReadAt(p[done:done+n], off+int64(done)); err != nil {
			return done, fmt.Errorf("read at 0x%06X: %w", off+int64(done), err)
		}
		done += n
	}
	return done, nil
}

// WriteAt writes p to d starting at off, one chunk at a time.
func WriteAt(d Device, p []byte, off int64) (int, error) {
	if err := bounds(d, off, int64(len(p))); err != nil {
		return 0, err
	}
	done := 0
	for done < len(p) {
		n := min(len(p)-done, Chunk)
		if _, err := d.WriteAt(p[done:done+n], off+int64(done)); err != nil {
			return done, fmt.Errorf("write at 0x%06X: %w", off+int64(done), err)
		}
		done += n
	}
	return done, nil
}

// Fill sets n bytes at off to v.
func Fill(d Device, off, n int64, v byte) error {
	if err := bounds(d, off, n); err != nil {
		return err
	}
	var buf [Chunk]byte
	for i := range buf {
		buf[i] = v
	}
	for done := int64(0); done < n; {
		k := min(n-done, Chunk)
		if _, err := d.WriteAt(buf[:k], off+done); err != nil {
			return fmt.Errorf("fill at 0x%06X: %w", off+done, err)
		}
		done += k
	}
	pkg.LogDebug(pkg.ComponentMem, "fill", "off", off, "len", n, "value", v)
	return nil
}

// Copy moves n bytes from src to dst within d. Overlapping ranges are
// handled like memmove.
func Copy(d Device, dst, src, n int64) error {
	if err := bounds(d, src, n); err != nil {
		return err
	}
	if err := bounds(d, dst, n); err != nil {
		return err
	}
	if dst == src || n == 0 {
		return nil
	}

	var buf [Chunk]byte
	step := func(at int64, k int64) error {
		if _, err := d.ReadAt(buf[:k], src+at); err != nil {
			return fmt.Errorf("copy read at 0x%06X: %w", src+at, err)
		}
		if _, err := d.WriteAt(buf[:k], dst+at); err != nil {
			return fmt.Errorf("copy write at 0x%06X: %w", dst+at, err)
		}
		return nil
	}

	if dst < src || dst >= src+n {
		for at := int64(0); at < n; at += Chunk {
			if err := step(at, min(n-at, Chunk)); err != nil {
				return err
			}
		}
	} else {
		// dst overlaps the tail of src: walk backwards.
		for end := n; end > 0; end -= Chunk {
			k := min(end, Chunk)
			if err := step(end-k, k); err != nil {
				return err
			}
		}
	}
	pkg.LogDebug(pkg.ComponentMem, "copy", "dst", dst, "src", src, "len", n)
	return nil
}

// bounds checks [off, off+n) against the device before any transfer. A
// device reporting no capacity is read once so that its own state error,
// such as psram's ErrNotInitialized, reaches the caller.
func bounds(d Device, off, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", pkg.ErrInvalidParameter, n)
	}
	size := d.Size()
	if size == 0 {
		var b [1]byte
		if _, err := d.ReadAt(b[:], 0); err != nil {
			return err
		}
		return fmt.Errorf("%w: device reports no capacity", pkg.ErrInvalidParameter)
	}
	if off < 0 || off+n > size {
		return fmt.Errorf("%w: [0x%X, +%d) outside %d-byte device",
			pkg.ErrAddressOutOfRange, off, n, size)
	}
	return nil
}
