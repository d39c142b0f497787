package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"example.com/n2kgate/internal/canlog"
)

func mustRecord(t *testing.T, id uint32, data ...byte) canlog.Record {
	t.Helper()
	r, err := canlog.NewRecord(id, data)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

func TestRoundTripSocketCAN(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	ts := time.Unix(1634567890, 250000000)
	position := mustRecord(t, 0x09F80115, 0x00, 0x38, 0x9C, 0x1C, 0x00, 0xD3, 0xCE, 0xFE)
	if err := w.WriteFrame(ts, position); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.writeRaw(ts, 0x123, []byte{1}); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	if err := w.writeRaw(ts, idFlagExtended|idFlagRemote|0x100, nil); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.LinkType() != LinkTypeCANSocketCAN {
		t.Fatalf("link type = %v", r.LinkType())
	}
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.ID != position.ID || got.DataText() != position.DataText() {
		t.Fatalf("frame = %s, want %s", got, position)
	}
	if got.Timestamp != "1634567890.250000" {
		t.Fatalf("timestamp = %q", got.Timestamp)
	}
	for _, want := range []int{2, 3} {
		_, err := r.Next()
		var perr *canlog.ParseError
		if !errors.As(err, &perr) || perr.Line != want {
			t.Fatalf("packet %d error = %v", want, err)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("end error = %v", err)
	}
}

func TestLinuxSLLLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	pw := pcapgo.NewWriter(&buf)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeLinuxSLL); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}
	frame := make([]byte, 16)
	binary.LittleEndian.PutUint32(frame[0:4], idFlagExtended|0x0DF50B23)
	frame[4] = 2
	frame[8], frame[9] = 0xAB, 0xCD
	// SLL header: packet type 0, ARPHRD_CAN, protocol ETH_P_CAN.
	sll := make([]byte, 16)
	binary.BigEndian.PutUint16(sll[2:4], 280)
	binary.BigEndian.PutUint16(sll[14:16], 0x000C)
	data := append(sll, frame...)
	ci := gopacket.CaptureInfo{Timestamp: time.Unix(5, 0), CaptureLength: len(data), Length: len(data)}
	if err := pw.WritePacket(ci, data); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.ID != 0x0DF50B23 || got.DataText() != "AB CD" {
		t.Fatalf("frame = %s", got)
	}
}

func TestPcapng(t *testing.T) {
	var buf bytes.Buffer
	ng, err := pcapgo.NewNgWriter(&buf, LinkTypeCANSocketCAN)
	if err != nil {
		t.Fatalf("NewNgWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		data := make([]byte, 9)
		binary.BigEndian.PutUint32(data[0:4], idFlagExtended|uint32(0x09F10D00+i))
		data[4] = 1
		data[8] = byte(i)
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(int64(i), 0), CaptureLength: len(data), Length: len(data), InterfaceIndex: 0}
		if err := ng.WritePacket(ci, data); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := ng.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	n, err := r.Skip(context.Background(), 2)
	if err != nil || n != 2 {
		t.Fatalf("Skip = %d, %v", n, err)
	}
	got, err := r.Next()
	if err != nil || got.ID != 0x09F10D02 || got.DataText() != "02" {
		t.Fatalf("third frame = %s, %v", got, err)
	}
	if r.Packets() != 3 {
		t.Fatalf("packets = %d", r.Packets())
	}
}

func TestRejectsOtherInputs(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("1 0x100 0\n"))); !errors.Is(err, ErrNotCapture) {
		t.Fatalf("text input error = %v", err)
	}
	var buf bytes.Buffer
	pw := pcapgo.NewWriter(&buf)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}
	if _, err := NewReader(&buf); !errors.Is(err, ErrUnsupportedLink) {
		t.Fatalf("ethernet error = %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteFrame(time.Unix(1, 0), mustRecord(t, 0x1F119, 1, 2, 3)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f.Close()

	if !IsCapturePath(path) || IsCapturePath("frames.log") {
		t.Fatalf("IsCapturePath mismatch")
	}
	rf, r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()
	got, err := r.Next()
	if err != nil || got.ID != 0x1F119 || got.Len != 3 {
		t.Fatalf("frame = %s, %v", got, err)
	}
}
