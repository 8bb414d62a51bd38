// Package hal defines the hardware capabilities consumed by the PSRAM bus
// controller.
//
// The controller never touches registers. Platform code provides:
//
//   - a [Sequencer] that claims programmable bit-level engines (RP2040-style
//     PIO state machines) running one of the [Program] variants
//   - a [DMA] controller whose [Channel]s move bytes between memory and an
//     engine FIFO, paced by a [DREQ] signal
//   - a [Timer] for the fixed settle times of the bring-up handshake
//
// A software model of all three, plus the PSRAM chip itself, lives in
// [github.com/ardnew/softpsram/psram/hal/sim].
package hal
