package model

// Task defines a single streaming aggregation over the generated flow
// stream. Implementations own their state exclusively; the orchestrator
// guarantees a single logical writer.
type Task interface {
	// ObserveRaw accounts a flow before sampling. Only volume counters may
	// be updated here; no per-key state is touched.
	ObserveRaw(rec *FlowRecord)

	// Process folds a sampled flow into the task's keyed accumulators.
	Process(rec *FlowRecord)

	// Finalize freezes the task and returns its report. It is idempotent:
	// repeated calls return the same snapshot, and updates arriving after
	// the first call are discarded.
	Finalize() Report

	Name() string
}
