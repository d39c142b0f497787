// Package capture reads CAN frames from pcap and pcapng files recorded on a
// SocketCAN interface, so captures can be imported like a text frame log.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"example.com/n2kgate/internal/canlog"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN from the tcpdump registry.
const LinkTypeCANSocketCAN layers.LinkType = 227

const (
	idFlagExtended = 0x80000000
	idFlagRemote   = 0x40000000
	idFlagError    = 0x20000000
	idMaskExtended = 0x1fffffff

	socketCANHeaderLen = 8
	pcapngMagic        = 0x0A0D0D0A
)

var (
	ErrUnsupportedLink = errors.New("capture: unsupported link type")
	ErrNotCapture      = errors.New("capture: not a pcap or pcapng file")
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader yields one canlog.Record per packet. Packets that are not extended
// data frames are reported as *canlog.ParseError numbered by packet.
type Reader struct {
	src      packetReader
	linkType layers.LinkType
	packets  int
}

// IsCapturePath reports whether path names a capture file by extension.
func IsCapturePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		return true
	}
	return false
}

// Open opens a capture file. The caller closes the returned file.
func Open(path string) (*os.File, *Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "read %s", path)
	}
	return f, r, nil
}

// NewReader detects pcap or pcapng from the file magic.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, errors.Wrap(ErrNotCapture, "short header")
	}
	var (
		src      packetReader
		linkType layers.LinkType
	)
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "pcapng header"), ErrNotCapture)
		}
		src, linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "pcap header"), ErrNotCapture)
		}
		src, linkType = pr, pr.LinkType()
	}
	switch linkType {
	case LinkTypeCANSocketCAN, layers.LinkTypeLinuxSLL:
	default:
		return nil, errors.Wrapf(ErrUnsupportedLink, "%v", linkType)
	}
	return &Reader{src: src, linkType: linkType}, nil
}

// LinkType returns the link type of the first interface.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Packets returns the number of packets read so far.
func (r *Reader) Packets() int {
	return r.packets
}

// Skip discards up to n packets, checking ctx every thousand packets.
func (r *Reader) Skip(ctx context.Context, n int) (int, error) {
	done := 0
	for done < n {
		if done%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return done, err
			}
		}
		if _, _, err := r.src.ReadPacketData(); err != nil {
			if errors.Is(err, io.EOF) {
				return done, nil
			}
			return done, errors.Wrap(err, "read packet")
		}
		r.packets++
		done++
	}
	return done, nil
}

// Next returns the frame carried by the next packet.
func (r *Reader) Next() (canlog.Record, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return canlog.Record{}, io.EOF
		}
		return canlog.Record{}, errors.Wrap(err, "read packet")
	}
	r.packets++

	payload := data
	order := binary.ByteOrder(binary.BigEndian)
	if r.linkType == layers.LinkTypeLinuxSLL {
		// Cooked captures carry the frame in host order after the SLL header.
		order = binary.LittleEndian
		packet := gopacket.NewPacket(data, r.linkType, gopacket.NoCopy)
		if l := packet.Layer(layers.LayerTypeLinuxSLL); l != nil {
			payload = l.(*layers.LinuxSLL).Payload
		}
	}
	rec, err := decodeFrame(payload, order)
	if err != nil {
		return canlog.Record{}, &canlog.ParseError{
			Line:   r.packets,
			Reason: fmt.Sprintf("packet %d: %v", r.packets, err),
			Err:    err,
		}
	}
	return rec.WithTimestamp(formatTimestamp(ci.Timestamp)), nil
}

func decodeFrame(data []byte, order binary.ByteOrder) (canlog.Record, error) {
	if len(data) < socketCANHeaderLen {
		return canlog.Record{}, errors.Wrapf(canlog.ErrParse, "%d bytes is too short for a CAN frame", len(data))
	}
	raw := order.Uint32(data[0:4])
	switch {
	case raw&idFlagError != 0:
		return canlog.Record{}, errors.Wrap(canlog.ErrParse, "error frame")
	case raw&idFlagRemote != 0:
		return canlog.Record{}, errors.Wrap(canlog.ErrParse, "remote frame")
	case raw&idFlagExtended == 0:
		return canlog.Record{}, errors.Wrapf(canlog.ErrParse, "standard identifier 0x%X", raw&0x7ff)
	}
	n := int(data[4])
	if n > 8 {
		n = 8
	}
	if len(data) < socketCANHeaderLen+n {
		return canlog.Record{}, errors.Wrapf(canlog.ErrParse, "frame declares %d octets, packet holds %d", n, len(data)-socketCANHeaderLen)
	}
	return canlog.NewRecord(raw&idMaskExtended, data[socketCANHeaderLen:socketCANHeaderLen+n])
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%d.%06d", ts.Unix(), ts.Nanosecond()/1000)
}
