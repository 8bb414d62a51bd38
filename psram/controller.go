package psram

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/exp/constraints"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// Stats counts the transfers a controller has completed or rejected.
type Stats struct {
	Reads        uint64
	Writes       uint64
	BytesRead    uint64
	BytesWritten uint64
	Rejected     uint64 // calls that failed before reaching the hardware
}

// Controller is a PSRAM bus. It owns one sequencer engine, two DMA channels
// and the frame scratch buffer.
//
// Every transfer holds Config.Locker from framing until the DMA transfer
// completes. A controller shared by several goroutines needs a real locker.
type Controller struct {
	cfg  Config
	lock sync.Locker

	divisor ClockDivisor
	clkErr  error

	link   *LinkManager
	xfer   *TransferEngine
	framer *Framer

	// rx receives scalar and block reads.
	rx    [BlockSize]byte
	stats Stats
}

// New returns an uninitialized controller for the bus described by cfg. It
// negotiates the clock divisor but does not touch the hardware; a divisor
// failure is returned by Init.
func New(cfg Config, seq hal.Sequencer, dma hal.DMA) (*Controller, error) {
	if seq == nil || dma == nil {
		return nil, fmt.Errorf("%w: nil sequencer or DMA capability", pkg.ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		lock:   cfg.Locker,
		xfer:   NewTransferEngine(dma),
		framer: NewFramer(0),
	}
	if c.lock == nil {
		c.lock = noLock{}
	}
	c.divisor, c.clkErr = SelectDivisor(cfg.SystemClock, cfg.MaxClock, cfg.MinClock)
	c.link = NewLinkManager(cfg, seq, c.divisor)

	pkg.LogDebug(pkg.ComponentController, "controller created",
		"sequencer", cfg.Sequencer,
		"select", cfg.SelectPin,
		"clock", cfg.ClockPin,
		"data", cfg.DataPinBase)
	return c, nil
}

// Init brings the device up and arms the DMA channels. On an active
// controller it repeats the bring-up, which recovers a wedged bus.
func (c *Controller) Init() (Identity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.link.State() == StateFaulted {
		return Identity{}, pkg.ErrControllerFaulted
	}
	if c.clkErr != nil {
		return Identity{}, c.clkErr
	}

	id, engine, err := c.link.BringUp()
	if err != nil {
		return Identity{}, err
	}
	reused := c.xfer.Armed()
	if err := c.xfer.Arm(engine); err != nil {
		c.link.Fault()
		pkg.LogError(pkg.ComponentController, "DMA arm failed", "error", err)
		return Identity{}, err
	}
	c.framer.SetCapacity(id.Capacity)

	pkg.LogInfo(pkg.ComponentController, "controller ready",
		"bus", c.divisor.Frequency(c.cfg.SystemClock).String(),
		"program", c.divisor.Program().String(),
		"capacity", id.Capacity,
		"dma_reused", reused)
	return id, nil
}

// Close releases the DMA channels and the sequencer engine. A closed
// controller reports ErrNotInitialized until Init is called again.
func (c *Controller) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.xfer.Release()
	c.link.Release()
	return nil
}

// State returns the link state.
func (c *Controller) State() LinkState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.link.State()
}

// Identity returns the device identity read by Init.
func (c *Controller) Identity() Identity {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.link.Identity()
}

// Size returns the device capacity in bytes, or 0 before Init.
func (c *Controller) Size() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.link.State() != StateQuadLineActive {
		return 0
	}
	return int64(c.framer.Capacity())
}

// Divisor returns the negotiated clock divisor, or 0 if none fits.
func (c *Controller) Divisor() ClockDivisor {
	return c.divisor
}

// Stats returns a snapshot of the transfer counters.
func (c *Controller) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

// ReadAt reads len(p) bytes at device offset off in a single transaction.
// It implements io.ReaderAt for transfers of up to MaxPayload bytes. An empty
// p at or before the end of the device reads nothing and returns 0, nil.
func (c *Controller) ReadAt(p []byte, off int64) (int, error) {
	addr, err := offset(off)
	if err != nil {
		return 0, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if len(p) == 0 {
		return 0, c.empty(addr)
	}
	if err := c.read(addr, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt writes p at device offset off in a single transaction. It
// implements io.WriterAt for transfers of up to MaxPayload bytes. An empty p
// is a no-op, as for ReadAt.
func (c *Controller) WriteAt(p []byte, off int64) (int, error) {
	addr, err := offset(off)
	if err != nil {
		return 0, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if len(p) == 0 {
		return 0, c.empty(addr)
	}
	if err := c.write(addr, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read8 reads one byte at addr.
func (c *Controller) Read8(addr uint32) (uint8, error) { return readScalar[uint8](c, addr) }

// Read16 reads a host-order uint16 at addr.
func (c *Controller) Read16(addr uint32) (uint16, error) { return readScalar[uint16](c, addr) }

// Read32 reads a host-order uint32 at addr.
func (c *Controller) Read32(addr uint32) (uint32, error) { return readScalar[uint32](c, addr) }

// Read64 reads a host-order uint64 at addr.
func (c *Controller) Read64(addr uint32) (uint64, error) { return readScalar[uint64](c, addr) }

// Write8 writes one byte at addr.
func (c *Controller) Write8(addr uint32, v uint8) error { return writeScalar(c, addr, v) }

// Write16 writes v at addr in host byte order.
func (c *Controller) Write16(addr uint32, v uint16) error { return writeScalar(c, addr, v) }

// Write32 writes v at addr in host byte order.
func (c *Controller) Write32(addr uint32, v uint32) error { return writeScalar(c, addr, v) }

// Write64 writes v at addr in host byte order.
func (c *Controller) Write64(addr uint32, v uint64) error { return writeScalar(c, addr, v) }

// ReadBlock reads BlockSize bytes at addr into dst.
func (c *Controller) ReadBlock(addr uint32, dst *[BlockSize]byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.read(addr, c.rx[:]); err != nil {
		return err
	}
	*dst = c.rx
	return nil
}

// WriteBlock writes the BlockSize bytes of src at addr.
func (c *Controller) WriteBlock(addr uint32, src *[BlockSize]byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(addr, src[:])
}

// Pages returns the number of PageSize pages on the device, or 0 before Init.
func (c *Controller) Pages() uint32 {
	return uint32(c.Size() / PageSize)
}

// ReadPage reads page number page into dst.
func (c *Controller) ReadPage(page uint32, dst *[PageSize]byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.read(pageAddr(page), dst[:])
}

// WritePage writes data at the start of page number page. data may be
// shorter than a page; the rest of the page is left unchanged.
func (c *Controller) WritePage(page uint32, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(pageAddr(page), data)
}

func readScalar[T constraints.Unsigned](c *Controller, addr uint32) (T, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	p := c.rx[:sizeOf[T]()]
	if err := c.read(addr, p); err != nil {
		return 0, err
	}
	return scalar[T](p), nil
}

func writeScalar[T constraints.Unsigned](c *Controller, addr uint32, v T) error {
	var b [8]byte
	p := putScalar(b[:], v)
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(addr, p)
}

// read runs one quad read into dst. The caller holds c.lock.
func (c *Controller) read(addr uint32, dst []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	frame, err := c.framer.Read(addr, len(dst))
	if err != nil {
		c.reject("read", addr, len(dst), err)
		return err
	}
	c.xfer.Execute(frame, dst)
	c.stats.Reads++
	c.stats.BytesRead += uint64(len(dst))
	c.trace("read", addr, len(dst))
	return nil
}

// write runs one quad write of src. The caller holds c.lock.
func (c *Controller) write(addr uint32, src []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	frame, err := c.framer.Write(addr, src)
	if err != nil {
		c.reject("write", addr, len(src), err)
		return err
	}
	c.xfer.Execute(frame, nil)
	c.stats.Writes++
	c.stats.BytesWritten += uint64(len(src))
	c.trace("write", addr, len(src))
	return nil
}

// empty checks a zero-length io transfer at addr. State errors and offsets
// past the end still fail. The caller holds c.lock.
func (c *Controller) empty(addr uint32) error {
	if err := c.ready(); err != nil {
		return err
	}
	if addr > c.framer.Capacity() {
		return fmt.Errorf("%w: offset 0x%X past %d-byte device",
			pkg.ErrAddressOutOfRange, addr, c.framer.Capacity())
	}
	return nil
}

func (c *Controller) ready() error {
	switch c.link.State() {
	case StateQuadLineActive:
		return nil
	case StateFaulted:
		c.stats.Rejected++
		return pkg.ErrControllerFaulted
	default:
		c.stats.Rejected++
		return pkg.ErrNotInitialized
	}
}

func (c *Controller) reject(op string, addr uint32, n int, err error) {
	c.stats.Rejected++
	pkg.LogDebug(pkg.ComponentFramer, op+" rejected",
		"addr", addr,
		"len", n,
		"error", err)
}

func (c *Controller) trace(op string, addr uint32, n int) {
	if !pkg.LogEnabled(slog.LevelDebug) {
		return
	}
	pkg.LogDebug(pkg.ComponentController, op,
		"addr", fmt.Sprintf("0x%06X", addr),
		"len", n)
}

// offset converts an io.ReaderAt offset to a device address.
func offset(off int64) (uint32, error) {
	if off < 0 || off > math.MaxUint32 {
		return 0, fmt.Errorf("%w: offset %d", pkg.ErrAddressOutOfRange, off)
	}
	return uint32(off), nil
}

// pageAddr returns the address of page, saturated at AddressLimit so the
// framer rejects pages past the 24-bit address space.
func pageAddr(page uint32) uint32 {
	return uint32(min(uint64(page)*PageSize, AddressLimit))
}
