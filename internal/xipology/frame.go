package xipology

import "math/rand"

// Decoy-count selection and slot shuffling use the package-level
// math/rand source (seeded in init, see channel.go), matching the
// teacher's internal/protocol/fragment.go convention of reaching for
// the global source rather than threading a generator through every
// call — its top-level functions are already safe for concurrent use.

// DataBits is the number of payload bits carried by one frame.
const DataBits = 8

// primarySlotsPerFrame is Reservation + Guard + 8 Data + Parity.
const primarySlotsPerFrame = 1 + 1 + DataBits + 1

// DefaultDecoyBits is the build-time default count of decoy names
// consumed (and, on write, sometimes emitted) per frame.
const DefaultDecoyBits = 4

func getBit(b byte, bit int) bool {
	return (b>>uint(bit))&1 == 1
}

func setBit(b *byte, bit int) {
	*b |= 1 << uint(bit)
}

// writeFrame lays out the writer's slot list for one byte: it always
// consumes exactly primarySlotsPerFrame names from primary and
// decoyBits names from decoy, but only emits a slot when it is
// "set" — Reservation is always set, Guard is never emitted, Data(i)
// is emitted iff bit i of b is 1, Parity is emitted iff the number of
// set data bits is odd (even-parity scheme), and between 0 and
// decoyBits-1 decoys are emitted at random.
func writeFrame(b byte, primary, decoy *NameDerivator, decoyBits int) ([]slot, error) {
	out := make([]slot, 0, primarySlotsPerFrame+decoyBits)

	reservation, err := primary.NextName()
	if err != nil {
		return nil, err
	}
	out = append(out, slot{Tag: Tag{Kind: SlotReservation}, Name: reservation, Latency: 0})

	// Guard: consumed but never emitted on write.
	if _, err := primary.NextName(); err != nil {
		return nil, err
	}

	parity := false
	for bit := 0; bit < DataBits; bit++ {
		name, err := primary.NextName()
		if err != nil {
			return nil, err
		}
		if getBit(b, bit) {
			out = append(out, slot{Tag: Tag{Kind: SlotData, Bit: bit}, Name: name})
			parity = !parity
		}
	}

	parityName, err := primary.NextName()
	if err != nil {
		return nil, err
	}
	if parity {
		out = append(out, slot{Tag: Tag{Kind: SlotParity}, Name: parityName})
	}

	k := 0
	if decoyBits > 0 {
		k = rand.Intn(decoyBits)
	}
	for i := 0; i < decoyBits; i++ {
		name, err := decoy.NextName()
		if err != nil {
			return nil, err
		}
		if i < k {
			out = append(out, slot{Tag: Tag{Kind: SlotDecoy}, Name: name})
		}
	}

	return out, nil
}

// readFrame lays out the reader's fixed-shape slot list: all
// primarySlotsPerFrame primary slots (the reader doesn't know ahead of
// time which were set) plus exactly decoyBits decoy slots, so the
// decoy derivator advances by the same amount on both sides
// regardless of how many decoys the writer actually emitted.
func readFrame(primary, decoy *NameDerivator, decoyBits int) ([]slot, error) {
	out := make([]slot, 0, primarySlotsPerFrame+decoyBits)

	for i := 0; i < primarySlotsPerFrame; i++ {
		name, err := primary.NextName()
		if err != nil {
			return nil, err
		}
		out = append(out, slot{Tag: primarySlotTag(i), Name: name})
	}

	for i := 0; i < decoyBits; i++ {
		name, err := decoy.NextName()
		if err != nil {
			return nil, err
		}
		out = append(out, slot{Tag: Tag{Kind: SlotDecoy}, Name: name})
	}

	return out, nil
}

func primarySlotTag(i int) Tag {
	switch i {
	case 0:
		return Tag{Kind: SlotReservation}
	case 1:
		return Tag{Kind: SlotGuard}
	case primarySlotsPerFrame - 1:
		return Tag{Kind: SlotParity}
	default:
		return Tag{Kind: SlotData, Bit: i - 2}
	}
}

// classifySlots downgrades every slot whose probed latency classifies
// as a miss to SlotDecoy, in place — a missed slot carries no
// information, exactly as if it had never been written.
func classifySlots(slots []slot, calib *Calibration) {
	for i := range slots {
		if !Classify(slots[i].Latency, calib) {
			slots[i].Tag = Tag{Kind: SlotDecoy}
		}
	}
}

// reconstruct rebuilds a byte from a classified slot list, or reports
// the frame state per spec.md §4.4's state machine: Free when no
// Reservation slot hit, Consumed when the Guard slot hit, Parity on a
// parity mismatch, else the decoded byte.
func reconstruct(slots []slot) (byte, error) {
	var (
		hasReservation bool
		hasGuard       bool
		hasParity      bool
		parity         bool
		b              byte
	)

	for _, s := range slots {
		switch s.Tag.Kind {
		case SlotReservation:
			hasReservation = true
		case SlotGuard:
			hasGuard = true
		case SlotData:
			setBit(&b, s.Tag.Bit)
			parity = !parity
		case SlotParity:
			hasParity = true
		}
	}

	if !hasReservation {
		return 0, ErrFree
	}
	if hasGuard {
		return 0, ErrConsumed
	}
	if hasParity != parity {
		return 0, ErrParity
	}
	return b, nil
}
