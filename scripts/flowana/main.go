package main

import (
	"FlowForge/internal/model"
	"FlowForge/pkg/pcap"
	"fmt"
	"log"
	"os"
)

// Prints the flows recorded in a sampled_flow.pcap capture, one line per
// exported record.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/flowana/main.go <path_to_pcap_file>")
		os.Exit(1)
	}

	r, err := pcap.NewReader(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	out := make(chan *pcap.ExportPacket, 64)
	go r.ReadPackets(out)

	flows, bytes := 0, uint64(0)
	for ep := range out {
		for _, rec := range ep.Records {
			flows++
			bytes += uint64(rec.Octets)
			fmt.Printf("[seq=%d +%dms] %s:%d -> %s:%d proto=%d pkts=%d bytes=%d AS%d->AS%d\n",
				ep.Sequence, ep.SysUptimeMs,
				model.IPString(rec.SrcAddr), rec.SrcPort,
				model.IPString(rec.DstAddr), rec.DstPort,
				rec.Protocol, rec.Packets, rec.Octets,
				rec.SrcAS, rec.DstAS,
			)
		}
	}
	fmt.Printf("%d flows, %d bytes total\n", flows, bytes)
}
