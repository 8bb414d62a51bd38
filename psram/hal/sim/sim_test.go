package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softpsram/psram/hal"
)

// =============================================================================
// Helpers
// =============================================================================

func singlePins() hal.PinConfig {
	return hal.PinConfig{Select: 0, Clock: 1, DataBase: 2, DataLines: 1, ClockDiv: 2}
}

func quadPins() hal.PinConfig {
	return hal.PinConfig{Select: 0, Clock: 1, DataBase: 2, DataLines: 4, ClockDiv: 1}
}

// command pushes one single-line transaction and collects its response.
func command(e hal.Engine, tx []byte, rxLen int) []byte {
	e.Put(uint32(len(tx)*8) << 24)
	e.Put(uint32(rxLen*8) << 24)
	for _, b := range tx {
		e.Put(uint32(b) << 24)
	}
	rx := make([]byte, rxLen)
	for i := range rx {
		rx[i] = byte(e.Get())
	}
	return rx
}

func quadFrame(body []byte, readBytes int) []byte {
	f := make([]byte, quadHeaderSize+len(body))
	binary.BigEndian.PutUint16(f[0:2], uint16(len(body)*2))
	binary.BigEndian.PutUint16(f[2:4], uint16(readBytes*2))
	copy(f[quadHeaderSize:], body)
	return f
}

func configure(ch hal.Channel, e hal.Engine, dir hal.Direction) {
	cfg := hal.ChannelConfig{Size: hal.TransferSize8, DREQ: e.DREQ(dir)}
	if dir == hal.DirectionTx {
		cfg.ReadIncrement = true
		cfg.FIFO = e.TxFIFO()
	} else {
		cfg.WriteIncrement = true
		cfg.FIFO = e.RxFIFO()
	}
	ch.Configure(cfg)
}

// =============================================================================
// Chip Tests
// =============================================================================

func TestChipReadID(t *testing.T) {
	bus := New(DefaultChipConfig())
	e, err := bus.Sequencer.Claim(hal.ProgramSingleLine, singlePins())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	e.SetEnabled(true)

	got := command(e, []byte{cmdReadID, 0xFF, 0xFF, 0xFF}, 6)
	want := []byte{0x0D, 0x5D, 0x40, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("read-id = % X, want % X", got, want)
	}
	if f := bus.Chip.Faults(); len(f) != 0 {
		t.Errorf("unexpected faults: %v", f)
	}
}

func TestChipResetRequiresEnable(t *testing.T) {
	bus := New(ChipConfig{KGD: 0x5D, QuadMode: true})
	e, _ := bus.Sequencer.Claim(hal.ProgramSingleLine, singlePins())
	e.SetEnabled(true)

	// Quad mode ignores single-line traffic entirely.
	command(e, []byte{cmdReset}, 0)
	if !bus.Chip.QuadMode() {
		t.Fatal("single-line reset left quad mode")
	}
	e.Release()

	bus = New(DefaultChipConfig())
	e, _ = bus.Sequencer.Claim(hal.ProgramSingleLine, singlePins())
	e.SetEnabled(true)
	command(e, []byte{cmdReset}, 0)
	if faults := bus.Chip.Faults(); len(faults) != 1 || !errors.Is(faults[0], ErrProtocol) {
		t.Errorf("Faults() = %v, want one ErrProtocol", faults)
	}

	command(e, []byte{cmdResetEnable}, 0)
	command(e, []byte{cmdReset}, 0)
	if bus.Chip.Resets() != 1 {
		t.Errorf("Resets() = %d, want 1", bus.Chip.Resets())
	}
}

func TestChipQuadRoundTrip(t *testing.T) {
	bus := New(ChipConfig{KGD: 0x5D, Size: 1 << 20, QuadMode: true})
	e, err := bus.Sequencer.Claim(hal.ProgramQuadDiv2, quadPins())
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	e.SetEnabled(true)

	tx, _ := bus.DMA.Claim()
	rx, _ := bus.DMA.Claim()
	configure(tx, e, hal.DirectionTx)
	configure(rx, e, hal.DirectionRx)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	tx.StartFromBuffer(quadFrame(append([]byte{cmdQuadWrite, 0x00, 0x12, 0x34}, payload...), 0))
	tx.Wait()

	got := make([]byte, len(payload))
	tx.StartFromBuffer(quadFrame([]byte{cmdQuadRead, 0x00, 0x12, 0x34, 0, 0, 0}, len(got)))
	rx.StartToBuffer(got)
	tx.Wait()
	rx.Wait()

	if !bytes.Equal(got, payload) {
		t.Errorf("read back % X, want % X", got, payload)
	}
	if n := len(bus.Chip.Frames()); n != 2 {
		t.Errorf("Frames() = %d, want 2", n)
	}
	if bus.DMA.Starts() != 3 {
		t.Errorf("Starts() = %d, want 3", bus.DMA.Starts())
	}
	if f := append(bus.Chip.Faults(), bus.DMA.Faults()...); len(f) != 0 {
		t.Errorf("unexpected faults: %v", f)
	}
}

func TestChipQuadReadNeedsWaitCycles(t *testing.T) {
	bus := New(ChipConfig{KGD: 0x5D, QuadMode: true})
	e, _ := bus.Sequencer.Claim(hal.ProgramQuadDiv4, quadPins())
	e.SetEnabled(true)

	for _, b := range quadFrame([]byte{cmdQuadRead, 0, 0, 0}, 1) {
		e.Put(uint32(b) << 24)
	}
	e.Get()
	if len(bus.Chip.Faults()) != 1 {
		t.Errorf("Faults() = %v, want one", bus.Chip.Faults())
	}
}

func TestChipAddressWraps(t *testing.T) {
	c := NewChip(ChipConfig{Size: 16})
	c.Poke(14, []byte{1, 2, 3, 4})

	got := make([]byte, 4)
	c.Peek(0, got)
	if !bytes.Equal(got, []byte{3, 4, 0, 0}) {
		t.Errorf("Peek(0) = %v", got)
	}
}

// =============================================================================
// Sequencer and DMA Tests
// =============================================================================

func TestSequencerClaim(t *testing.T) {
	tests := []struct {
		name    string
		prog    hal.Program
		pins    hal.PinConfig
		wantErr bool
	}{
		{"single line", hal.ProgramSingleLine, singlePins(), false},
		{"quad", hal.ProgramQuadDiv2, quadPins(), false},
		{"line mismatch", hal.ProgramQuadDiv4, singlePins(), true},
		{"zero divider", hal.ProgramSingleLine, hal.PinConfig{DataLines: 1}, true},
		{"unknown program", hal.Program(9), quadPins(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSequencer(NewChip(DefaultChipConfig()), 1)
			_, err := s.Claim(tt.prog, tt.pins)
			if (err != nil) != tt.wantErr {
				t.Errorf("Claim() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSequencerExhaustion(t *testing.T) {
	s := NewSequencer(NewChip(DefaultChipConfig()), 0)
	for i := range StateMachines {
		if _, err := s.Claim(hal.ProgramSingleLine, singlePins()); err != nil {
			t.Fatalf("Claim(%d) error = %v", i, err)
		}
	}
	if _, err := s.Claim(hal.ProgramSingleLine, singlePins()); err == nil {
		t.Error("Claim() succeeded with no free state machine")
	}

	s = NewSequencer(NewChip(DefaultChipConfig()), 0)
	s.FailClaims(1)
	if _, err := s.Claim(hal.ProgramSingleLine, singlePins()); err == nil {
		t.Error("FailClaims(1) did not fail the first claim")
	}
	e, err := s.Claim(hal.ProgramSingleLine, singlePins())
	if err != nil {
		t.Fatalf("second Claim() error = %v", err)
	}
	e.Release()
	e.Release()
	if s.Active() != 0 {
		t.Errorf("Active() = %d after release, want 0", s.Active())
	}
}

func TestEngineDREQAndFIFO(t *testing.T) {
	s := NewSequencer(NewChip(DefaultChipConfig()), 1)
	s.Claim(hal.ProgramSingleLine, singlePins())
	e, _ := s.Claim(hal.ProgramQuadDiv2, quadPins())

	if got := e.DREQ(hal.DirectionTx); got != 9 {
		t.Errorf("DREQ(tx) = %d, want 9", got)
	}
	if got := e.DREQ(hal.DirectionRx); got != 13 {
		t.Errorf("DREQ(rx) = %d, want 13", got)
	}
	if got := e.TxFIFO(); got != 0x5030_0014 {
		t.Errorf("TxFIFO() = %#x", got)
	}
	if got := e.RxFIFO(); got != 0x5030_0024 {
		t.Errorf("RxFIFO() = %#x", got)
	}
}

func TestEngineHoldsUntilEnabled(t *testing.T) {
	bus := New(DefaultChipConfig())
	e, _ := bus.Sequencer.Claim(hal.ProgramSingleLine, singlePins())

	e.Put(8 << 24)
	e.Put(0)
	e.Put(cmdQuadEnable << 24)
	if bus.Chip.QuadMode() {
		t.Fatal("disabled engine ran a transaction")
	}
	e.SetEnabled(true)
	if !bus.Chip.QuadMode() {
		t.Error("enabling the engine did not run the pending transaction")
	}
}

func TestDMAMisconfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*hal.ChannelConfig)
	}{
		{"wide units", func(c *hal.ChannelConfig) { c.Size = hal.TransferSize32 }},
		{"wrong dreq", func(c *hal.ChannelConfig) { c.DREQ++ }},
		{"unknown fifo", func(c *hal.ChannelConfig) { c.FIFO = 0x1000 }},
		{"write increment", func(c *hal.ChannelConfig) { c.WriteIncrement = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := New(DefaultChipConfig())
			e, _ := bus.Sequencer.Claim(hal.ProgramQuadDiv2, quadPins())
			e.SetEnabled(true)
			ch, _ := bus.DMA.Claim()

			cfg := hal.ChannelConfig{
				Size:          hal.TransferSize8,
				ReadIncrement: true,
				DREQ:          e.DREQ(hal.DirectionTx),
				FIFO:          e.TxFIFO(),
			}
			tt.mutate(&cfg)
			ch.Configure(cfg)
			ch.StartFromBuffer(quadFrame([]byte{cmdQuadWrite, 0, 0, 0, 1}, 0))

			if len(bus.DMA.Faults()) != 1 {
				t.Errorf("Faults() = %v, want one", bus.DMA.Faults())
			}
			if len(bus.Chip.Frames()) != 0 {
				t.Error("misconfigured transfer reached the chip")
			}
		})
	}
}

func TestDMAClaimAndPriority(t *testing.T) {
	d := NewDMA(NewSequencer(NewChip(DefaultChipConfig()), 0))
	var _ hal.Prioritizer = d

	d.FailClaims(1)
	if _, err := d.Claim(); err == nil {
		t.Error("FailClaims(1) did not fail the claim")
	}
	for range Channels {
		if _, err := d.Claim(); err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
	}
	if _, err := d.Claim(); err == nil {
		t.Error("Claim() succeeded past the channel count")
	}

	d.SetDMAPriority(true)
	if !d.HighPriority() {
		t.Error("HighPriority() = false after SetDMAPriority(true)")
	}
}

func TestChannelBusy(t *testing.T) {
	bus := New(ChipConfig{QuadMode: true})
	e, _ := bus.Sequencer.Claim(hal.ProgramQuadDiv2, quadPins())
	e.SetEnabled(true)
	tx, _ := bus.DMA.Claim()
	rx, _ := bus.DMA.Claim()
	configure(tx, e, hal.DirectionTx)
	configure(rx, e, hal.DirectionRx)

	got := make([]byte, 2)
	rx.StartToBuffer(got)
	if !rx.Busy() {
		t.Fatal("Busy() = false with no data produced")
	}
	tx.StartFromBuffer(quadFrame([]byte{cmdQuadRead, 0, 0, 0, 0, 0, 0}, 2))
	if rx.Busy() {
		t.Error("Busy() = true after data was produced")
	}
	rx.Wait()
}

func TestTimer(t *testing.T) {
	var tm Timer
	tm.Delay(150 * time.Microsecond)
	tm.Delay(10 * time.Microsecond)

	if got := len(tm.Delays()); got != 2 {
		t.Errorf("Delays() = %d entries, want 2", got)
	}
	if got := tm.Total(); got != 160*time.Microsecond {
		t.Errorf("Total() = %v, want 160µs", got)
	}
}
