package report

import (
	"FlowForge/internal/model"
	"hash/fnv"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const defaultShardCount = 64

// KeyFunc derives the aggregation key for a flow record.
type KeyFunc func(rec *model.FlowRecord) string

// AddrPairKey groups flows by source/destination address pair (top talkers).
func AddrPairKey(rec *model.FlowRecord) string {
	return model.IPString(rec.SrcAddr) + "->" + model.IPString(rec.DstAddr)
}

// ASPairKey groups flows by source/destination AS pair (peering summary).
func ASPairKey(rec *model.FlowRecord) string {
	return "AS" + strconv.Itoa(int(rec.SrcAS)) + "->AS" + strconv.Itoa(int(rec.DstAS))
}

// Entry is the mutable per-key accumulator. Owned exclusively by the task.
type Entry struct {
	Key       string
	ByteCount uint64
	FlowCount uint64
}

type shard struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// Task maintains streaming byte/flow totals per key in a sharded map and
// extracts the top-N at finalization. The key space here is bounded by the
// route and server tables, far smaller than the flow count, so the full map
// fits; maxKeys is the safety ceiling past which the smallest entry in the
// overflowing shard is evicted.
type Task struct {
	name        string
	keyFn       KeyFunc
	topN        int
	perShardMax int
	shards      []*shard
	shardCount  uint32

	rawFlows     atomic.Uint64
	rawBytes     atomic.Uint64
	sampledFlows atomic.Uint64
	sampledBytes atomic.Uint64

	finalized    atomic.Bool
	finalizeOnce sync.Once
	report       model.Report
}

// New creates an aggregation task. maxKeys bounds the working set across
// all shards.
func New(name string, keyFn KeyFunc, topN, maxKeys int) *Task {
	perShard := maxKeys / defaultShardCount
	if perShard < topN {
		perShard = topN
	}
	t := &Task{
		name:        name,
		keyFn:       keyFn,
		topN:        topN,
		perShardMax: perShard,
		shards:      make([]*shard, defaultShardCount),
		shardCount:  defaultShardCount,
	}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return t
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// ObserveRaw accounts a pre-sampling flow in the raw volume counters.
func (t *Task) ObserveRaw(rec *model.FlowRecord) {
	t.rawFlows.Add(1)
	t.rawBytes.Add(uint64(rec.Octets))
}

// Process folds a sampled flow into its key's accumulator, creating the
// entry on first use. Updates after Finalize are dropped.
func (t *Task) Process(rec *model.FlowRecord) {
	if t.finalized.Load() {
		return
	}

	t.sampledFlows.Add(1)
	t.sampledBytes.Add(uint64(rec.Octets))

	key := t.keyFn(rec)
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.ByteCount += uint64(rec.Octets)
		e.FlowCount++
		return
	}
	if len(s.entries) >= t.perShardMax {
		t.evictSmallest(s)
	}
	s.entries[key] = &Entry{
		Key:       key,
		ByteCount: uint64(rec.Octets),
		FlowCount: 1,
	}
}

// evictSmallest removes the lowest-byte entry from a full shard. Caller
// holds the shard lock.
func (t *Task) evictSmallest(s *shard) {
	var victim *Entry
	for _, e := range s.entries {
		if victim == nil || e.ByteCount < victim.ByteCount {
			victim = e
		}
	}
	if victim != nil {
		delete(s.entries, victim.Key)
		log.Printf("Task '%s' hit its key ceiling, evicted '%s' (%d bytes)", t.name, victim.Key, victim.ByteCount)
	}
}

// Finalize freezes the task and returns the sorted top-N report. Idempotent:
// the first call takes the snapshot, later calls return it unchanged.
func (t *Task) Finalize() model.Report {
	t.finalizeOnce.Do(func() {
		t.finalized.Store(true)

		var all []*Entry
		for _, s := range t.shards {
			s.mu.RLock()
			for _, e := range s.entries {
				all = append(all, e)
			}
			s.mu.RUnlock()
		}

		sort.Slice(all, func(i, j int) bool {
			if all[i].ByteCount != all[j].ByteCount {
				return all[i].ByteCount > all[j].ByteCount
			}
			if all[i].FlowCount != all[j].FlowCount {
				return all[i].FlowCount > all[j].FlowCount
			}
			return all[i].Key < all[j].Key
		})

		n := t.topN
		if n > len(all) {
			n = len(all)
		}
		entries := make([]model.ReportEntry, n)
		for i := 0; i < n; i++ {
			entries[i] = model.ReportEntry{
				Key:       all[i].Key,
				ByteCount: all[i].ByteCount,
				FlowCount: all[i].FlowCount,
			}
		}

		t.report = model.Report{
			TaskName:     t.name,
			Entries:      entries,
			TotalKeys:    len(all),
			SampledFlows: t.sampledFlows.Load(),
			SampledBytes: t.sampledBytes.Load(),
			RawFlows:     t.rawFlows.Load(),
			RawBytes:     t.rawBytes.Load(),
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
		}
	})
	return t.report
}

// KeyCount returns the number of live keys across all shards.
func (t *Task) KeyCount() int {
	count := 0
	for _, s := range t.shards {
		s.mu.RLock()
		count += len(s.entries)
		s.mu.RUnlock()
	}
	return count
}

func (t *Task) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%t.shardCount]
}
