package model

// FlowSink receives flow records as the run produces them. Sinks that only
// care about the exported stream return nil from WriteRaw.
type FlowSink interface {
	WriteRaw(rec *FlowRecord) error
	WriteSampled(rec *FlowRecord) error

	// Close flushes buffered output. The artifact must remain parseable
	// even if Close is never reached.
	Close() error
}
