package pacer

import (
	"context"
	"time"
)

// batchesPerSecond fixes the batch schedule. 100 batches keeps per-batch
// sleeps at 10ms, coarse enough to avoid timer overhead at high flow rates.
const batchesPerSecond = 100

// Pacer converts a target flow rate and duration into a schedule of
// generation batches, sleeping to the next batch boundary instead of pacing
// per flow.
type Pacer struct {
	targetFPS       int
	durationSeconds int
}

// New creates a pacer for the given rate and duration.
func New(targetFPS, durationSeconds int) *Pacer {
	return &Pacer{targetFPS: targetFPS, durationSeconds: durationSeconds}
}

// Run drives the batch loop until the duration elapses or ctx is cancelled.
// emit receives the batch's offset from run start in milliseconds and the
// number of flows to produce, and returns how many actually came out; the
// next batch size shrinks or grows to keep the cumulative count on the
// ideal schedule, so jitter and generator surplus never accumulate into
// long-run rate drift.
//
// Cancellation is only observed between batches; an in-flight batch always
// completes. On cancellation Run returns ctx.Err().
func (p *Pacer) Run(ctx context.Context, emit func(offsetMs int64, count int) (int, error)) error {
	interval := time.Second / batchesPerSecond
	totalBatches := p.durationSeconds * batchesPerSecond
	start := time.Now()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	var produced int64
	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait := time.Until(start.Add(time.Duration(batch) * interval)); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}

		scheduled := int64(p.targetFPS) * int64(batch+1) / batchesPerSecond
		count := scheduled - produced
		if count < 0 {
			count = 0
		}

		offsetMs := int64(batch) * 1000 / batchesPerSecond
		n, err := emit(offsetMs, int(count))
		if err != nil {
			return err
		}
		produced += int64(n)
	}
	return nil
}
