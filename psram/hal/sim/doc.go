// Package sim implements the psram/hal capabilities in software, wired to a
// model of an APS6404-class QSPI PSRAM.
//
// The model is faithful at the transaction level: the single-line program
// consumes [write bits][read bits][byte]... words, the quad programs consume
// the nibble-count header and bus bytes produced by the controller's framer,
// and the chip tracks its mode register and reset latch. Anything the
// controller gets wrong is recorded as an [ErrProtocol] fault rather than
// silently accepted:
//
//	bus := sim.New(sim.DefaultChipConfig())
//	ctl, _ := psram.New(cfg, bus.Sequencer, bus.DMA)
//	id, err := ctl.Init()
//	...
//	if faults := bus.Chip.Faults(); len(faults) > 0 { ... }
//
// Counters such as [DMA.Starts] and [Sequencer.Claims] let tests assert that
// an operation did not touch the hardware at all.
package sim
