package report

import (
	"FlowForge/internal/model"
	"fmt"
	"reflect"
	"testing"
)

func flow(src, dst uint32, srcAS, dstAS uint16, octets uint32) *model.FlowRecord {
	return &model.FlowRecord{
		SrcAddr: src,
		DstAddr: dst,
		SrcAS:   srcAS,
		DstAS:   dstAS,
		Octets:  octets,
	}
}

func TestTopNSortingAndTieBreak(t *testing.T) {
	task := New("top_talkers", AddrPairKey, 3, 1<<16)

	// Key A: 300 bytes over 1 flow. Key B: 300 bytes over 2 flows.
	// Key C: 100 bytes. Key D: 100 bytes, same flow count as C.
	task.Process(flow(1, 2, 0, 0, 300))
	task.Process(flow(3, 4, 0, 0, 200))
	task.Process(flow(3, 4, 0, 0, 100))
	task.Process(flow(5, 6, 0, 0, 100))
	task.Process(flow(7, 8, 0, 0, 100))

	rep := task.Finalize()
	if len(rep.Entries) != 3 {
		t.Fatalf("got %d entries, want topN=3", len(rep.Entries))
	}

	// B wins the byte tie against A on flow count; C and D tie on both and
	// fall back to key order, of which only the smaller fits in the top 3.
	if rep.Entries[0].Key != AddrPairKey(flow(3, 4, 0, 0, 0)) {
		t.Errorf("rank 1 is %q, want the two-flow 300-byte key", rep.Entries[0].Key)
	}
	if rep.Entries[1].Key != AddrPairKey(flow(1, 2, 0, 0, 0)) {
		t.Errorf("rank 2 is %q, want the one-flow 300-byte key", rep.Entries[1].Key)
	}
	cKey := AddrPairKey(flow(5, 6, 0, 0, 0))
	dKey := AddrPairKey(flow(7, 8, 0, 0, 0))
	want := cKey
	if dKey < cKey {
		want = dKey
	}
	if rep.Entries[2].Key != want {
		t.Errorf("rank 3 is %q, want lexicographically smaller tied key %q", rep.Entries[2].Key, want)
	}
	if rep.TotalKeys != 4 {
		t.Errorf("TotalKeys = %d, want 4", rep.TotalKeys)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	task := New("peering", ASPairKey, 5, 1<<16)
	for i := 0; i < 100; i++ {
		task.Process(flow(1, 2, uint16(i%7+1), 65000, uint32(i+1)*10))
	}

	first := task.Finalize()
	second := task.Finalize()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated Finalize returned a different snapshot")
	}

	// Updates after finalization are discarded.
	task.Process(flow(9, 9, 9, 9, 1<<30))
	third := task.Finalize()
	if !reflect.DeepEqual(first, third) {
		t.Fatal("Process after Finalize mutated the snapshot")
	}
}

func TestRawAndSampledCounters(t *testing.T) {
	task := New("top_talkers", AddrPairKey, 10, 1<<16)

	for i := 0; i < 50; i++ {
		rec := flow(uint32(i), 99, 1, 65000, 100)
		task.ObserveRaw(rec)
		if i%10 == 0 {
			task.Process(rec)
		}
	}

	rep := task.Finalize()
	if rep.RawFlows != 50 || rep.RawBytes != 5000 {
		t.Errorf("raw counters %d flows / %d bytes, want 50 / 5000", rep.RawFlows, rep.RawBytes)
	}
	if rep.SampledFlows != 5 || rep.SampledBytes != 500 {
		t.Errorf("sampled counters %d flows / %d bytes, want 5 / 500", rep.SampledFlows, rep.SampledBytes)
	}
}

func TestKeyFuncs(t *testing.T) {
	rec := flow(0x01020304, 0x05060708, 64001, 65000, 0)
	if got := AddrPairKey(rec); got != "1.2.3.4->5.6.7.8" {
		t.Errorf("AddrPairKey = %q", got)
	}
	if got := ASPairKey(rec); got != "AS64001->AS65000" {
		t.Errorf("ASPairKey = %q", got)
	}
}

func TestKeyCeilingEviction(t *testing.T) {
	// maxKeys below the shard count clamps every shard to topN entries, so
	// the working set stays bounded no matter how many keys stream in.
	task := New("top_talkers", AddrPairKey, 1, 1)

	for i := 0; i < 5000; i++ {
		task.Process(flow(uint32(i), uint32(i+1), 0, 0, uint32(i+1)))
	}

	if count := task.KeyCount(); count > defaultShardCount {
		t.Errorf("working set has %d keys, want at most %d", count, defaultShardCount)
	}
	rep := task.Finalize()
	if len(rep.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(rep.Entries))
	}
	// Volume counters keep full totals regardless of eviction.
	if rep.SampledFlows != 5000 {
		t.Errorf("sampled flows %d, want 5000", rep.SampledFlows)
	}
}

func TestProcessAggregatesPerKey(t *testing.T) {
	task := New("peering", ASPairKey, 10, 1<<16)
	for as := uint16(1); as <= 3; as++ {
		for i := 0; i < int(as); i++ {
			task.Process(flow(1, 2, as, 65000, 1000))
		}
	}

	rep := task.Finalize()
	if len(rep.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(rep.Entries))
	}
	top := rep.Entries[0]
	if top.Key != fmt.Sprintf("AS%d->AS%d", 3, 65000) {
		t.Errorf("top key %q, want AS3->AS65000", top.Key)
	}
	if top.ByteCount != 3000 || top.FlowCount != 3 {
		t.Errorf("top entry %d bytes / %d flows, want 3000 / 3", top.ByteCount, top.FlowCount)
	}
}
