package n2k

import "fmt"

const (
	// AddressGlobal is the destination of every PDU2 (broadcast) message.
	AddressGlobal = uint8(255)
	// AddressNull is used by nodes that could not claim an address.
	AddressNull = uint8(254)

	// MaxIdentifier is the largest 29-bit extended CAN identifier.
	MaxIdentifier = uint32(0x1FFFFFFF)

	pdu2Threshold = 240
)

// Address is the decomposition of a 29-bit extended identifier.
type Address struct {
	Priority    uint8  `json:"priority"`
	PGN         uint32 `json:"pgn"`
	Source      uint8  `json:"source"`
	Destination uint8  `json:"destination"`
}

// Broadcast reports whether the identifier was a PDU2 (group) message.
func (a Address) Broadcast() bool {
	return uint8(a.PGN>>8) >= pdu2Threshold
}

func (a Address) String() string {
	return fmt.Sprintf("pgn=%d prio=%d src=%d dst=%d", a.PGN, a.Priority, a.Source, a.Destination)
}

// DecodeID splits an extended identifier into priority, PGN, source and
// destination. Bits above 28 are ignored.
func DecodeID(id uint32) Address {
	id &= MaxIdentifier
	addr := Address{
		Priority: uint8(id>>26) & 0x7,
		Source:   uint8(id),
	}
	pf := uint8(id >> 16)
	ps := uint8(id >> 8)
	dp := (id >> 24) & 0x3
	base := dp<<16 | uint32(pf)<<8
	if pf < pdu2Threshold {
		// PDU1: PS is the destination address and not part of the PGN.
		addr.PGN = base
		addr.Destination = ps
	} else {
		addr.PGN = base | uint32(ps)
		addr.Destination = AddressGlobal
	}
	return addr
}

// EncodeID is the inverse of DecodeID. For PDU2 PGNs the destination is
// ignored.
func EncodeID(a Address) uint32 {
	id := uint32(a.Priority&0x7) << 26
	id |= (a.PGN & 0x3FF00) << 8
	if uint8(a.PGN>>8) < pdu2Threshold {
		id |= uint32(a.Destination) << 8
	} else {
		id |= (a.PGN & 0xFF) << 8
	}
	return id | uint32(a.Source)
}
