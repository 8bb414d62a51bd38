package psram

import "fmt"

// KGDExpected is the known-good-die byte of a part that passed factory test.
const KGDExpected = 0x5D

// Identity is the result of the read-ID handshake.
type Identity struct {
	MFID     byte   // manufacturer id
	KGD      byte   // known-good-die
	EID      byte   // first electronic id byte
	Capacity uint32 // bytes, decoded from EID
}

// String returns a short human-readable description.
func (id Identity) String() string {
	return fmt.Sprintf("mfid=0x%02X kgd=0x%02X eid=0x%02X capacity=%dMiB",
		id.MFID, id.KGD, id.EID, id.Capacity>>20)
}

// DecodeCapacity returns the capacity in bytes encoded by eid. The top three
// bits select a density class: 0 is 2 MiB, 1 is 4 MiB and 2 is 8 MiB. EID
// 0x26 is an 8 MiB part reporting a non-standard class. Unknown classes
// decode to 1 MiB.
func DecodeCapacity(eid byte) uint32 {
	const base = 1 << 20

	switch class := eid >> 5; {
	case eid == 0x26 || class == 2:
		return 8 * base
	case class == 0:
		return 2 * base
	case class == 1:
		return 4 * base
	default:
		return base
	}
}
