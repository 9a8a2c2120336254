package gen

import (
	"FlowForge/internal/config"
	"FlowForge/internal/model"
	"reflect"
	"testing"
)

func testTraffic() config.TrafficConfig {
	return config.TrafficConfig{NumRoutes: 20, MaxKeys: 1 << 16}
}

func TestGeneratorDeterministic(t *testing.T) {
	g1, err := NewGenerator(testTraffic(), 42)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	g2, err := NewGenerator(testTraffic(), 42)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	for _, batch := range []struct {
		nowMs int64
		want  int
	}{{0, 100}, {10, 50}, {20, 50}, {100, 200}} {
		a := g1.Emit(batch.nowMs, batch.want)
		b := g2.Emit(batch.nowMs, batch.want)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("same seed diverged at batch %dms", batch.nowMs)
		}
	}
}

func TestEmitCountAndTimestampOrder(t *testing.T) {
	g, err := NewGenerator(testTraffic(), 7)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	var all []*model.FlowRecord
	total := 0
	for batch := 0; batch < 100; batch++ {
		nowMs := int64(batch) * 10
		recs := g.Emit(nowMs, 10)
		if len(recs) < 10 {
			t.Fatalf("batch at %dms produced %d records, want at least 10", nowMs, len(recs))
		}
		total += len(recs)
		all = append(all, recs...)
	}

	if total < 1000 {
		t.Errorf("produced %d records over 100 batches, want >= 1000", total)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp < all[i-1].Timestamp {
			t.Fatalf("timestamp order violated at record %d: %d < %d", i, all[i].Timestamp, all[i-1].Timestamp)
		}
	}
	for i, rec := range all {
		if rec.Timestamp < 0 || rec.Timestamp > 990 {
			t.Fatalf("record %d timestamp %d outside emitted window [0, 990]", i, rec.Timestamp)
		}
	}
}

func TestForwardFlowShape(t *testing.T) {
	g, err := NewGenerator(testTraffic(), 99)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	// The first batch contains only fresh client->server flows; reverse
	// flows are still buffered for a future slot.
	recs := g.Emit(0, 500)
	serverPortSet := map[uint16]bool{443: true, 80: true, 22: true}

	for i, rec := range recs {
		switch rec.Protocol {
		case model.ProtoTCP, model.ProtoUDP:
			if !serverPortSet[rec.DstPort] {
				t.Errorf("record %d: dst port %d is not a server port", i, rec.DstPort)
			}
			if rec.SrcPort < 49152 {
				t.Errorf("record %d: src port %d below the ephemeral range", i, rec.SrcPort)
			}
			if rec.Octets < minLightBytes || rec.Octets > maxHeavyBytes {
				t.Errorf("record %d: %d bytes outside the transfer model", i, rec.Octets)
			}
		case model.ProtoICMP:
			if rec.SrcPort != 0 || rec.DstPort != 0 {
				t.Errorf("record %d: ICMP flow has ports %d/%d", i, rec.SrcPort, rec.DstPort)
			}
		default:
			t.Errorf("record %d: unexpected protocol %d", i, rec.Protocol)
		}

		if rec.DstAS != internalASN {
			t.Errorf("record %d: forward flow dst AS %d, want %d", i, rec.DstAS, internalASN)
		}
		if rec.SrcAS == 0 || rec.SrcAS >= 64000 {
			t.Errorf("record %d: client AS %d outside the public range", i, rec.SrcAS)
		}
		if rec.First > rec.Timestamp {
			t.Errorf("record %d: first %d after export %d", i, rec.First, rec.Timestamp)
		}
		if rec.Packets == 0 {
			t.Errorf("record %d: zero packet count", i)
		}
	}

	if g.Pending() == 0 {
		t.Error("no reverse flows buffered after a fresh batch")
	}
}

func TestReverseFlowsEmitted(t *testing.T) {
	g, err := NewGenerator(testTraffic(), 3)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	first := g.Emit(0, 10)
	// Ask for nothing: everything in the next window is a buffered reverse
	// flow (latency 15ms + jitter < 6ms).
	second := g.Emit(30, 0)

	if len(second) != len(first) {
		t.Fatalf("emitted %d reverse flows for %d forward flows", len(second), len(first))
	}
	for i, rev := range second {
		if rev.SrcAS != internalASN {
			t.Errorf("reverse flow %d src AS %d, want %d", i, rev.SrcAS, internalASN)
		}
		if rev.Timestamp < serverLatencyMs || rev.Timestamp >= serverLatencyMs+maxJitterMs {
			t.Errorf("reverse flow %d at %dms, want within [%d, %d)", i, rev.Timestamp, serverLatencyMs, serverLatencyMs+maxJitterMs)
		}
	}
	if g.Pending() != 0 {
		t.Errorf("%d flows still buffered after their window passed", g.Pending())
	}
}

func TestSynthRouteTable(t *testing.T) {
	g, err := NewGenerator(config.TrafficConfig{NumRoutes: 50}, 1)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if len(g.routes) != 50 {
		t.Fatalf("route table has %d entries, want 50", len(g.routes))
	}
	seen := map[uint16]bool{}
	for _, r := range g.routes {
		if seen[r.ASN] {
			t.Errorf("duplicate ASN %d in route table", r.ASN)
		}
		seen[r.ASN] = true
		if r.RangeEnd <= r.RangeStart {
			t.Errorf("ASN %d has inverted range", r.ASN)
		}
		if r.SubnetBits < 8 || r.SubnetBits > 24 {
			t.Errorf("ASN %d has mask /%d outside [8, 24]", r.ASN, r.SubnetBits)
		}
		if byte(r.RangeStart>>24) == 10 {
			t.Errorf("ASN %d range collides with the exporter's 10/8 space", r.ASN)
		}
	}
}
