package mem

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sigurn/crc8"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softpsram/pkg"
)

// crcTable is CRC-8 with polynomial 0x07 (SMBus PEC).
var crcTable = crc8.MakeTable(crc8.CRC8)

// Checksum returns the CRC-8 of n bytes at off.
func Checksum(d Device, off, n int64) (uint8, error) {
	if err := bounds(d, off, n); err != nil {
		return 0, err
	}
	var buf [Chunk]byte
	sum := crc8.Init(crcTable)
	for done := int64(0); done < n; {
		k := min(n-done, Chunk)
		if _, err := d.ReadAt(buf[:k], off+done); err != nil {
			return 0, fmt.Errorf("checksum at 0x%06X: %w", off+done, err)
		}
		sum = crc8.Update(sum, buf[:k], crcTable)
		done += k
	}
	return crc8.Complete(sum, crcTable), nil
}

// ChecksumBytes returns the CRC-8 Checksum computes for the same bytes held
// in host memory.
func ChecksumBytes(p []byte) uint8 {
	return crc8.Checksum(p, crcTable)
}

// Verify reads len(want) bytes at off and reports ErrVerifyMismatch at the
// first differing address.
func Verify(d Device, off int64, want []byte) error {
	if err := bounds(d, off, int64(len(want))); err != nil {
		return err
	}
	var buf [Chunk]byte
	for done := 0; done < len(want); {
		k := min(len(want)-done, Chunk)
		at := off + int64(done)
		if _, err := d.ReadAt(buf[:k], at); err != nil {
			return fmt.Errorf("verify at 0x%06X: %w", at, err)
		}
		if i := mismatch(buf[:k], want[done:done+k]); i >= 0 {
			return fmt.Errorf("%w at 0x%06X: got 0x%02X, want 0x%02X",
				pkg.ErrVerifyMismatch, at+int64(i), buf[i], want[done+i])
		}
		done += k
	}
	return nil
}

// TestConfig parameterizes Test.
type TestConfig struct {
	Offset  int64 // first byte of the region
	Length  int64 // region length; 0 selects the rest of the device
	Workers int   // concurrent walkers, each on its own stripe; < 1 means 1
	Seed    byte  // mixed into the pattern so reruns detect stale data
}

// Test writes an address-derived pattern over a region and reads it back.
// Workers walk disjoint stripes concurrently, so d must be safe for
// concurrent use when Workers > 1; a *psram.Controller is only safe when its
// Config.Locker is set. The first failure cancels the other walkers. An empty
// region is rejected with ErrInvalidParameter.
func Test(ctx context.Context, d Device, cfg TestConfig) error {
	if cfg.Length == 0 {
		cfg.Length = d.Size() - cfg.Offset
	}
	if err := bounds(d, cfg.Offset, cfg.Length); err != nil {
		return err
	}
	if cfg.Length == 0 {
		return fmt.Errorf("%w: empty test region at 0x%06X", pkg.ErrInvalidParameter, cfg.Offset)
	}
	workers := int64(max(cfg.Workers, 1))
	stripe := (cfg.Length + workers - 1) / workers
	stripe = (stripe + Chunk - 1) / Chunk * Chunk

	g, ctx := errgroup.WithContext(ctx)
	for start := cfg.Offset; start < cfg.Offset+cfg.Length; start += stripe {
		end := min(start+stripe, cfg.Offset+cfg.Length)
		g.Go(func() error {
			return walk(ctx, d, start, end, cfg.Seed)
		})
	}
	if err := g.Wait(); err != nil {
		pkg.LogWarn(pkg.ComponentMem, "memory test failed", "error", err)
		return err
	}
	pkg.LogInfo(pkg.ComponentMem, "memory test passed",
		"off", cfg.Offset,
		"len", cfg.Length,
		"workers", workers)
	return nil
}

// walk writes then verifies [start, end) one chunk at a time.
func walk(ctx context.Context, d Device, start, end int64, seed byte) error {
	var want, got [Chunk]byte
	for pass := range 2 {
		for at := start; at < end; at += Chunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := min(end-at, Chunk)
			patternAt(want[:k], at, seed)
			if pass == 0 {
				if _, err := d.WriteAt(want[:k], at); err != nil {
					return fmt.Errorf("test write at 0x%06X: %w", at, err)
				}
				continue
			}
			if _, err := d.ReadAt(got[:k], at); err != nil {
				return fmt.Errorf("test read at 0x%06X: %w", at, err)
			}
			if i := mismatch(got[:k], want[:k]); i >= 0 {
				return fmt.Errorf("%w at 0x%06X: got 0x%02X, want 0x%02X",
					pkg.ErrVerifyMismatch, at+int64(i), got[i], want[i])
			}
		}
	}
	return nil
}

// patternAt fills p with the test pattern for the bytes starting at addr.
// Each byte mixes all three address bytes so aliased address lines show up.
func patternAt(p []byte, addr int64, seed byte) {
	for i := range p {
		a := addr + int64(i)
		p[i] = byte(a) ^ byte(a>>8) ^ byte(a>>16)*3 ^ seed
	}
}

// mismatch returns the index of the first differing byte, or -1.
func mismatch(a, b []byte) int {
	if bytes.Equal(a, b) {
		return -1
	}
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}
