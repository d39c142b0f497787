package canlog

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	maxExtID   = 0x1FFFFFFF
	maxDataLen = 8
)

var (
	ErrInvalidID  = errors.New("canlog: identifier exceeds 29 bits")
	ErrInvalidLen = errors.New("canlog: data length exceeds 8 octets")
)

// Record is one CAN frame as logged or captured. Values are never modified
// after construction; a changed frame is a new Record.
type Record struct {
	Timestamp string
	ID        uint32
	Len       uint8
	Data      [maxDataLen]byte
}

// NewRecord builds a validated Record from a payload of at most 8 octets.
func NewRecord(id uint32, data []byte) (Record, error) {
	if id > maxExtID {
		return Record{}, errors.Wrapf(ErrInvalidID, "0x%X", id)
	}
	if len(data) > maxDataLen {
		return Record{}, errors.Wrapf(ErrInvalidLen, "%d octets", len(data))
	}
	r := Record{ID: id, Len: uint8(len(data))}
	copy(r.Data[:], data)
	return r, nil
}

// WithTimestamp returns a copy of r carrying ts.
func (r Record) WithTimestamp(ts string) Record {
	r.Timestamp = ts
	return r
}

// Payload returns a copy of the first Len data octets.
func (r Record) Payload() []byte {
	out := make([]byte, r.Len)
	copy(out, r.Data[:r.Len])
	return out
}

// IDText renders the identifier the way capture logs write it.
func (r Record) IDText() string {
	return fmt.Sprintf("%X", r.ID)
}

// DataText renders the payload as space separated hex octets.
func (r Record) DataText() string {
	parts := make([]string, r.Len)
	for i := 0; i < int(r.Len); i++ {
		parts[i] = fmt.Sprintf("%02X", r.Data[i])
	}
	return strings.Join(parts, " ")
}

func (r Record) String() string {
	return fmt.Sprintf("%s [%d] %s", r.IDText(), r.Len, r.DataText())
}
