package pcap

import (
	"FlowForge/internal/model"
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	v5Version     = 5
	v5HeaderBytes = 24
	v5RecordBytes = 48
)

// ExportPacket is one decoded NetFlow v5 export packet.
type ExportPacket struct {
	Sequence         uint32
	SysUptimeMs      uint32
	SamplingInterval uint16
	Records          []*model.FlowRecord
}

// Reader reads NetFlow v5 export packets back out of a capture file.
type Reader struct {
	file *os.File
	r    *pcapgo.Reader
}

// NewReader opens a capture file written by the pcap flow sink.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header from '%s': %w", filePath, err)
	}
	return &Reader{file: f, r: r}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadPackets decodes every export packet in the capture and sends it to the
// provided channel. It closes the channel when the file is exhausted.
// Packets that do not carry a v5 PDU are logged and skipped.
func (r *Reader) ReadPackets(out chan<- *ExportPacket) {
	defer close(out)
	for {
		data, _, err := r.r.ReadPacketData()
		if err != nil {
			return
		}
		pkt := gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.NoCopy)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		ep, err := DecodeV5(udpLayer.(*layers.UDP).Payload)
		if err != nil {
			log.Printf("Error decoding export packet: %v", err)
			continue
		}
		out <- ep
	}
}

// DecodeV5 unpacks a NetFlow v5 PDU.
func DecodeV5(payload []byte) (*ExportPacket, error) {
	if len(payload) < v5HeaderBytes {
		return nil, fmt.Errorf("payload too short: %d bytes", len(payload))
	}
	if v := binary.BigEndian.Uint16(payload[0:]); v != v5Version {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	count := int(binary.BigEndian.Uint16(payload[2:]))
	if want := v5HeaderBytes + count*v5RecordBytes; len(payload) < want {
		return nil, fmt.Errorf("truncated PDU: %d bytes for %d records", len(payload), count)
	}

	ep := &ExportPacket{
		SysUptimeMs:      binary.BigEndian.Uint32(payload[4:]),
		Sequence:         binary.BigEndian.Uint32(payload[16:]),
		SamplingInterval: binary.BigEndian.Uint16(payload[22:]) & 0x3fff,
		Records:          make([]*model.FlowRecord, 0, count),
	}
	for i := 0; i < count; i++ {
		r := payload[v5HeaderBytes+i*v5RecordBytes:]
		ep.Records = append(ep.Records, &model.FlowRecord{
			Timestamp: int64(ep.SysUptimeMs),
			SrcAddr:   binary.BigEndian.Uint32(r[0:]),
			DstAddr:   binary.BigEndian.Uint32(r[4:]),
			NextHop:   binary.BigEndian.Uint32(r[8:]),
			Input:     binary.BigEndian.Uint16(r[12:]),
			Output:    binary.BigEndian.Uint16(r[14:]),
			Packets:   binary.BigEndian.Uint32(r[16:]),
			Octets:    binary.BigEndian.Uint32(r[20:]),
			First:     int64(binary.BigEndian.Uint32(r[24:])),
			Last:      int64(binary.BigEndian.Uint32(r[28:])),
			SrcPort:   binary.BigEndian.Uint16(r[32:]),
			DstPort:   binary.BigEndian.Uint16(r[34:]),
			TCPFlags:  r[37],
			Protocol:  r[38],
			Tos:       r[39],
			SrcAS:     binary.BigEndian.Uint16(r[40:]),
			DstAS:     binary.BigEndian.Uint16(r[42:]),
			SrcMask:   r[44],
			DstMask:   r[45],
		})
	}
	return ep, nil
}
