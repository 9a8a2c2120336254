package model

import (
	"net"
	"time"
)

// IP protocol numbers used by the flow model.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// FlowRecord is a single synthetic flow, carrying the NetFlow v5 field
// surface. Records are immutable after creation; ownership moves with the
// record through the pipeline.
type FlowRecord struct {
	// Timestamp is the export time of the record in milliseconds from the
	// run epoch. First and Last use the same clock.
	Timestamp int64
	SrcAddr   uint32
	DstAddr   uint32
	NextHop   uint32
	Input     uint16
	Output    uint16
	Packets   uint32
	Octets    uint32
	First     int64
	Last      int64
	SrcPort   uint16
	DstPort   uint16
	TCPFlags  uint8
	Protocol  uint8
	Tos       uint8
	SrcAS     uint16
	DstAS     uint16
	SrcMask   uint8
	DstMask   uint8
}

// SamplingDecision marks whether a flow was selected for export by the
// device sampler. It is produced alongside a record, never stored in it.
type SamplingDecision bool

// ProgressEvent is a point-in-time view of a running generation job.
// The orchestrator publishes one per second; consumers are optional.
type ProgressEvent struct {
	Elapsed        time.Duration `json:"elapsed_ns"`
	FlowsGenerated uint64        `json:"flows_generated"`
	FlowsSampled   uint64        `json:"flows_sampled"`
	BytesGenerated uint64        `json:"bytes_generated"`
	State          string        `json:"state"`
	RSSBytes       uint64        `json:"rss_bytes"`
	CPUPercent     float64       `json:"cpu_percent"`
}

// ReportEntry is one ranked key in a finalized report.
type ReportEntry struct {
	Key       string `json:"key"`
	ByteCount uint64 `json:"byte_count"`
	FlowCount uint64 `json:"flow_count"`
}

// Report is the finalized output of a single aggregation task.
type Report struct {
	TaskName     string        `json:"task_name"`
	Entries      []ReportEntry `json:"entries"`
	TotalKeys    int           `json:"total_keys"`
	SampledFlows uint64        `json:"sampled_flows"`
	SampledBytes uint64        `json:"sampled_bytes"`
	RawFlows     uint64        `json:"raw_flows"`
	RawBytes     uint64        `json:"raw_bytes"`
	Timestamp    string        `json:"timestamp"`
}

// RunSummary is the final accounting for a completed run.
type RunSummary struct {
	DurationSeconds int     `json:"duration_seconds"`
	TargetFPS       int     `json:"target_fps"`
	SamplingRate    int     `json:"sampling_rate"`
	FlowsGenerated  uint64  `json:"flows_generated"`
	FlowsSampled    uint64  `json:"flows_sampled"`
	BytesGenerated  uint64  `json:"bytes_generated"`
	BytesSampled    uint64  `json:"bytes_sampled"`
	ImpliedBytes    uint64  `json:"implied_original_bytes"`
	AchievedFPS     float64 `json:"achieved_fps"`
	Timestamp       string  `json:"timestamp"`
}

// IPString renders a big-endian IPv4 address in dotted-quad form.
func IPString(addr uint32) string {
	return net.IP{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}.String()
}
