// Package psram drives an APS6404-class QSPI PSRAM through a programmable
// bit-level sequencer and a pair of DMA channels.
//
// # Architecture
//
// A [Controller] composes four parts:
//
//   - [SelectDivisor] picks the bus clock divisor, and with it the quad
//     program variant, before any hardware is touched.
//   - [LinkManager] brings the device up: a single-line bootstrap to reset and
//     identify it, then a quad-line engine for all later traffic.
//   - [Framer] encodes transactions into the controller's scratch buffer.
//   - [TransferEngine] moves a framed transaction through two DMA channels and
//     blocks until both complete.
//
// The hardware is reached only through the capabilities in package hal, so a
// controller runs the same against real peripherals or the software model in
// hal/sim.
//
// # Usage
//
//	cfg := psram.DefaultConfig()
//	cfg.Locker = &sync.Mutex{} // only if several goroutines share ctl
//
//	ctl, err := psram.New(cfg, sequencer, dma)
//	if err != nil {
//		return err
//	}
//	id, err := ctl.Init()
//	if err != nil {
//		return err
//	}
//	_, err = ctl.WriteAt([]byte("hello"), 0x1000)
//
// # Transfers
//
// Every transfer is one device transaction of at most [MaxPayload] bytes.
// The controller never splits a request; package mem layers chunking on top.
// Transfers block until the DMA hardware reports completion and there is no
// timeout. A wedged bus is recovered by calling [Controller.Init] again.
package psram
