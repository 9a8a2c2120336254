package writer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func TestPcapWriterProducesReadableExportPackets(t *testing.T) {
	dir := t.TempDir()
	epoch := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	w, err := NewPcapWriter(dir, epoch, 1000)
	if err != nil {
		t.Fatalf("NewPcapWriter: %v", err)
	}

	rec := sampleRecord()
	if err := w.WriteRaw(rec); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if err := w.WriteSampled(rec); err != nil {
		t.Fatalf("WriteSampled: %v", err)
	}
	if err := w.WriteSampled(rec); err != nil {
		t.Fatalf("WriteSampled: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "sampled_flow.pcap"))
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("read pcap header: %v", err)
	}

	packets := 0
	for {
		data, ci, err := r.ReadPacketData()
		if err != nil {
			break
		}
		packets++

		pkt := gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			t.Fatalf("packet %d has no UDP layer", packets)
		}
		udp := udpLayer.(*layers.UDP)
		if udp.DstPort != netflowPort {
			t.Errorf("packet %d dst port %d, want %d", packets, udp.DstPort, netflowPort)
		}

		payload := udp.Payload
		if len(payload) != v5HeaderBytes+v5RecordBytes {
			t.Fatalf("packet %d payload is %d bytes, want %d", packets, len(payload), v5HeaderBytes+v5RecordBytes)
		}
		if v := binary.BigEndian.Uint16(payload[0:]); v != v5Version {
			t.Errorf("packet %d version %d, want %d", packets, v, v5Version)
		}
		if n := binary.BigEndian.Uint16(payload[2:]); n != 1 {
			t.Errorf("packet %d record count %d, want 1", packets, n)
		}
		if src := binary.BigEndian.Uint32(payload[v5HeaderBytes:]); src != rec.SrcAddr {
			t.Errorf("packet %d src addr %#x, want %#x", packets, src, rec.SrcAddr)
		}

		wantTS := epoch.Add(time.Duration(rec.Timestamp) * time.Millisecond)
		if !ci.Timestamp.Equal(wantTS) {
			t.Errorf("packet %d captured at %s, want %s", packets, ci.Timestamp, wantTS)
		}
	}

	// WriteRaw must not reach the capture.
	if packets != 2 {
		t.Errorf("capture holds %d packets, want 2", packets)
	}
}
