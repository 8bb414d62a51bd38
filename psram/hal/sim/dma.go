package sim

import (
	"fmt"
	"sync"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// Channels is the number of DMA channels on the controller.
const Channels = 12

// DMA models a DMA controller whose channels move bytes to and from the FIFOs
// of one Sequencer. Writes into a TX FIFO complete immediately; reads from an
// RX FIFO complete once the engine has produced the bytes.
//
// DMA is safe for concurrent use.
type DMA struct {
	mu sync.Mutex

	seq      *Sequencer
	channels [Channels]*Channel

	starts   int
	priority bool
	failNext int
	faults   []error
}

// NewDMA creates a DMA controller serving seq.
func NewDMA(seq *Sequencer) *DMA {
	return &DMA{seq: seq}
}

// Starts returns the number of transfers started on any channel.
func (d *DMA) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// FailClaims makes the next n channel claims fail.
func (d *DMA) FailClaims(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// Claimed returns the number of channels currently claimed.
func (d *DMA) Claimed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.channels {
		if c != nil {
			n++
		}
	}
	return n
}

// HighPriority reports the last value passed to SetDMAPriority.
func (d *DMA) HighPriority() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.priority
}

// Faults returns misconfigured transfers observed so far.
func (d *DMA) Faults() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.faults...)
}

// SetDMAPriority implements hal.Prioritizer.
func (d *DMA) SetDMAPriority(high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priority = high
}

// Claim implements hal.DMA.
func (d *DMA) Claim() (hal.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNext > 0 {
		d.failNext--
		return nil, fmt.Errorf("dma: channel claim rejected")
	}
	for i, c := range d.channels {
		if c == nil {
			ch := &Channel{dma: d, id: i}
			d.channels[i] = ch
			pkg.LogDebug(pkg.ComponentSim, "dma channel claimed", "channel", i)
			return ch, nil
		}
	}
	return nil, fmt.Errorf("dma: no free channel")
}

func (d *DMA) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
}

func (d *DMA) fault(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
	d.mu.Lock()
	d.faults = append(d.faults, err)
	d.mu.Unlock()
	pkg.LogWarn(pkg.ComponentSim, "dma fault", "error", err)
}

func (d *DMA) free(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[id] = nil
}

// Channel is one claimed channel of a simulated DMA controller.
type Channel struct {
	dma *DMA
	id  int

	mu       sync.Mutex
	cfg      hal.ChannelConfig
	pending  []byte
	engine   *Engine
	released bool
}

// ID returns the channel number.
func (c *Channel) ID() int {
	return c.id
}

// Config returns the configuration last applied.
func (c *Channel) Config() hal.ChannelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Configure implements hal.Channel.
func (c *Channel) Configure(cfg hal.ChannelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// resolve checks that the channel is set up for a transfer in dir and
// returns the engine behind the configured FIFO.
func (c *Channel) resolve(dir hal.Direction) (*Engine, bool) {
	if c.released {
		c.dma.fault("channel %d used after release", c.id)
		return nil, false
	}
	if c.cfg.Size != hal.TransferSize8 {
		c.dma.fault("channel %d: unit size %d, want 1", c.id, c.cfg.Size)
		return nil, false
	}
	e, fifoDir, ok := c.dma.seq.engineAt(c.cfg.FIFO)
	if !ok || fifoDir != dir {
		c.dma.fault("channel %d: FIFO %#x is not a claimed %v FIFO", c.id, c.cfg.FIFO, dir)
		return nil, false
	}
	if c.cfg.DREQ != e.DREQ(dir) {
		c.dma.fault("channel %d: paced by DREQ %d, FIFO raises %d", c.id, c.cfg.DREQ, e.DREQ(dir))
		return nil, false
	}
	wantRead, wantWrite := dir == hal.DirectionTx, dir == hal.DirectionRx
	if c.cfg.ReadIncrement != wantRead || c.cfg.WriteIncrement != wantWrite {
		c.dma.fault("channel %d: increments read=%v write=%v for %v",
			c.id, c.cfg.ReadIncrement, c.cfg.WriteIncrement, dir)
		return nil, false
	}
	return e, true
}

// StartFromBuffer implements hal.Channel.
func (c *Channel) StartFromBuffer(p []byte) {
	c.dma.start()

	c.mu.Lock()
	e, ok := c.resolve(hal.DirectionTx)
	c.mu.Unlock()
	if !ok {
		return
	}
	e.feed(p)
}

// StartToBuffer implements hal.Channel.
func (c *Channel) StartToBuffer(p []byte) {
	c.dma.start()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.resolve(hal.DirectionRx)
	if !ok {
		return
	}
	c.pending = p
	c.engine = e
}

// Busy implements hal.Channel.
func (c *Channel) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	if !c.engine.available(len(c.pending)) {
		return true
	}
	c.engine.pull(c.pending)
	c.pending, c.engine = nil, nil
	return false
}

// Wait implements hal.Channel.
func (c *Channel) Wait() {
	c.mu.Lock()
	p, e := c.pending, c.engine
	c.mu.Unlock()
	if p == nil {
		return
	}

	e.pull(p)

	c.mu.Lock()
	c.pending, c.engine = nil, nil
	c.mu.Unlock()
}

// Release implements hal.Channel.
func (c *Channel) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.pending, c.engine = nil, nil
	c.mu.Unlock()

	c.dma.free(c.id)
}
