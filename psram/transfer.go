package psram

import (
	"fmt"

	"github.com/ardnew/softpsram/pkg"
	"github.com/ardnew/softpsram/psram/hal"
)

// TransferEngine executes framed transactions through two DMA channels: one
// streaming the frame into the engine's TX FIFO, one draining its RX FIFO
// into the caller's buffer.
//
// TransferEngine is not safe for concurrent use.
type TransferEngine struct {
	dma hal.DMA
	tx  hal.Channel
	rx  hal.Channel
}

// NewTransferEngine returns an unarmed transfer engine over dma.
func NewTransferEngine(dma hal.DMA) *TransferEngine {
	return &TransferEngine{dma: dma}
}

// Armed reports whether both channels are claimed.
func (t *TransferEngine) Armed() bool {
	return t.tx != nil && t.rx != nil
}

// Arm binds the channels to engine's FIFOs, claiming them on first use.
// Channels stay claimed across re-arms until Release.
func (t *TransferEngine) Arm(engine hal.Engine) error {
	if t.tx == nil {
		ch, err := t.dma.Claim()
		if err != nil {
			return fmt.Errorf("%w: tx channel: %w", pkg.ErrEngineInitFailed, err)
		}
		t.tx = ch
	}
	if t.rx == nil {
		ch, err := t.dma.Claim()
		if err != nil {
			t.tx.Release()
			t.tx = nil
			return fmt.Errorf("%w: rx channel: %w", pkg.ErrEngineInitFailed, err)
		}
		t.rx = ch
	}

	t.tx.Configure(hal.ChannelConfig{
		Size:          hal.TransferSize8,
		ReadIncrement: true,
		HighPriority:  true,
		DREQ:          engine.DREQ(hal.DirectionTx),
		FIFO:          engine.TxFIFO(),
	})
	t.rx.Configure(hal.ChannelConfig{
		Size:           hal.TransferSize8,
		WriteIncrement: true,
		HighPriority:   true,
		DREQ:           engine.DREQ(hal.DirectionRx),
		FIFO:           engine.RxFIFO(),
	})

	if p, ok := t.dma.(hal.Prioritizer); ok {
		p.SetDMAPriority(true)
	}

	pkg.LogDebug(pkg.ComponentTransfer, "channels armed",
		"txDREQ", engine.DREQ(hal.DirectionTx),
		"rxDREQ", engine.DREQ(hal.DirectionRx))
	return nil
}

// Execute streams frame out and, if dst is non-empty, fills dst with the
// response. It blocks until both channels finish. There is no timeout: a
// sequencer that never raises its data requests blocks forever.
func (t *TransferEngine) Execute(frame, dst []byte) {
	t.tx.StartFromBuffer(frame)
	if len(dst) > 0 {
		t.rx.StartToBuffer(dst)
	}
	t.tx.Wait()
	if len(dst) > 0 {
		t.rx.Wait()
	}
}

// Release frees both channels.
func (t *TransferEngine) Release() {
	if t.tx != nil {
		t.tx.Release()
		t.tx = nil
	}
	if t.rx != nil {
		t.rx.Release()
		t.rx = nil
	}
}
