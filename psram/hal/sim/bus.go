package sim

// Bus bundles a chip with the sequencer, DMA controller and timer wired to it.
type Bus struct {
	Chip      *Chip
	Sequencer *Sequencer
	DMA       *DMA
	Timer     *Timer
}

// New builds a bus around a chip described by cfg, on PIO block 0.
func New(cfg ChipConfig) *Bus {
	chip := NewChip(cfg)
	seq := NewSequencer(chip, 0)
	return &Bus{
		Chip:      chip,
		Sequencer: seq,
		DMA:       NewDMA(seq),
		Timer:     &Timer{},
	}
}
