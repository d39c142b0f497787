package capture

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"example.com/n2kgate/internal/canlog"
)

// Writer records frames as a LINKTYPE_CAN_SOCKETCAN pcap file.
type Writer struct {
	w *pcapgo.Writer
}

func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(socketCANHeaderLen+8, LinkTypeCANSocketCAN); err != nil {
		return nil, errors.Wrap(err, "write pcap header")
	}
	return &Writer{w: pw}, nil
}

// WriteFrame appends r captured at ts.
func (w *Writer) WriteFrame(ts time.Time, r canlog.Record) error {
	return w.writeRaw(ts, r.ID|idFlagExtended, r.Payload())
}

func (w *Writer) writeRaw(ts time.Time, id uint32, payload []byte) error {
	buf := make([]byte, socketCANHeaderLen+8)
	binary.BigEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(payload))
	copy(buf[socketCANHeaderLen:], payload)
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(buf), Length: len(buf)}
	if err := w.w.WritePacket(ci, buf); err != nil {
		return errors.Wrap(err, "write packet")
	}
	return nil
}
