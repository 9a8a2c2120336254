package writer

import (
	"FlowForge/internal/model"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	netflowPort    = 2055
	v5HeaderBytes  = 24
	v5RecordBytes  = 48
	v5Version      = 5
)

var (
	exporterMAC  = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	collectorMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
	exporterIP   = net.IP{10, 1, 1, 1}
	collectorIP  = net.IP{10, 1, 1, 10}
)

// PcapWriter serializes each sampled flow as a one-record NetFlow v5 export
// packet (Ethernet/IPv4/UDP) into a pcap file, so the artifact can feed any
// collector that reads captures.
type PcapWriter struct {
	file  *os.File
	w     *pcapgo.Writer
	path  string
	epoch time.Time
	rate  uint16
	seq   uint32
}

// NewPcapWriter creates sampled_flow.pcap in the output directory. epoch is
// the run start; record timestamps are offsets from it.
func NewPcapWriter(dir string, epoch time.Time, samplingRate int) (*PcapWriter, error) {
	path := filepath.Join(dir, "sampled_flow.pcap")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file '%s': %w", path, err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header to '%s': %w", path, err)
	}

	rate := samplingRate
	if rate > 0x3fff {
		rate = 0x3fff // v5 sampling interval is 14 bits
	}
	return &PcapWriter{file: f, w: w, path: path, epoch: epoch, rate: uint16(rate)}, nil
}

// WriteRaw is a no-op; only the exported stream reaches the capture.
func (w *PcapWriter) WriteRaw(rec *model.FlowRecord) error { return nil }

// WriteSampled appends one export packet for the record.
func (w *PcapWriter) WriteSampled(rec *model.FlowRecord) error {
	ts := w.epoch.Add(time.Duration(rec.Timestamp) * time.Millisecond)
	payload := w.encodeV5(rec, ts)
	w.seq++

	eth := &layers.Ethernet{
		SrcMAC:       exporterMAC,
		DstMAC:       collectorMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    exporterIP,
		DstIP:    collectorIP,
	}
	udp := &layers.UDP{
		SrcPort: netflowPort,
		DstPort: netflowPort,
	}
	udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialize export packet: %w", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := w.w.WritePacket(ci, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write packet to '%s': %w", w.path, err)
	}
	return nil
}

// Close closes the capture file.
func (w *PcapWriter) Close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", w.path, err)
	}
	return nil
}

// encodeV5 packs a one-record NetFlow v5 PDU.
func (w *PcapWriter) encodeV5(rec *model.FlowRecord, ts time.Time) []byte {
	b := make([]byte, v5HeaderBytes+v5RecordBytes)

	// Header
	binary.BigEndian.PutUint16(b[0:], v5Version)
	binary.BigEndian.PutUint16(b[2:], 1) // record count
	binary.BigEndian.PutUint32(b[4:], uint32(rec.Timestamp))
	binary.BigEndian.PutUint32(b[8:], uint32(ts.Unix()))
	binary.BigEndian.PutUint32(b[12:], uint32(ts.Nanosecond()))
	binary.BigEndian.PutUint32(b[16:], w.seq)
	// engine type/id zero; sampling mode 01 (packet interval) + interval
	binary.BigEndian.PutUint16(b[22:], 0x4000|w.rate)

	// Record
	r := b[v5HeaderBytes:]
	binary.BigEndian.PutUint32(r[0:], rec.SrcAddr)
	binary.BigEndian.PutUint32(r[4:], rec.DstAddr)
	binary.BigEndian.PutUint32(r[8:], rec.NextHop)
	binary.BigEndian.PutUint16(r[12:], rec.Input)
	binary.BigEndian.PutUint16(r[14:], rec.Output)
	binary.BigEndian.PutUint32(r[16:], rec.Packets)
	binary.BigEndian.PutUint32(r[20:], rec.Octets)
	binary.BigEndian.PutUint32(r[24:], uint32(rec.First))
	binary.BigEndian.PutUint32(r[28:], uint32(rec.Last))
	binary.BigEndian.PutUint16(r[32:], rec.SrcPort)
	binary.BigEndian.PutUint16(r[34:], rec.DstPort)
	r[37] = rec.TCPFlags
	r[38] = rec.Protocol
	r[39] = rec.Tos
	binary.BigEndian.PutUint16(r[40:], rec.SrcAS)
	binary.BigEndian.PutUint16(r[42:], rec.DstAS)
	r[44] = rec.SrcMask
	r[45] = rec.DstMask

	return b
}
