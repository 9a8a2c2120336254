package orchestrator

import (
	"FlowForge/internal/api"
	"FlowForge/internal/config"
	"FlowForge/internal/engine/report"
	"FlowForge/internal/gen"
	"FlowForge/internal/model"
	"FlowForge/internal/pacer"
	"FlowForge/internal/probe"
	"FlowForge/internal/sampler"
	"FlowForge/internal/writer"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// queueCapacity bounds the channel between the generation loop and the
// sink/aggregation goroutine. A full queue blocks the producer, delaying
// the next batch instead of dropping flows.
const queueCapacity = 4096

type item struct {
	rec     *model.FlowRecord
	sampled model.SamplingDecision
}

// Orchestrator wires pacer -> generator -> sampler -> {sinks, tasks} and
// drives one run from Idle to Done.
type Orchestrator struct {
	cfg *config.Config

	gen   *gen.Generator
	smp   *sampler.Systematic
	tasks []model.Task
	sinks []model.FlowSink
	pub   *probe.Publisher

	state    atomic.Int32
	ioFailed atomic.Bool

	flowsGenerated atomic.Uint64
	flowsSampled   atomic.Uint64
	bytesGenerated atomic.Uint64
	bytesSampled   atomic.Uint64

	latest atomic.Value // model.ProgressEvent
	events chan model.ProgressEvent
	proc   *process.Process

	startTime  time.Time
	runElapsed time.Duration
}

// New creates an orchestrator for one run of the given configuration.
func New(cfg *config.Config) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		events: make(chan model.ProgressEvent, 16),
	}
	o.state.Store(int32(StateIdle))
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Progress returns the most recent progress snapshot.
func (o *Orchestrator) Progress() model.ProgressEvent {
	if ev, ok := o.latest.Load().(model.ProgressEvent); ok {
		return ev
	}
	return model.ProgressEvent{State: o.State().String()}
}

// Events returns the progress event stream. Events are dropped, not
// buffered, when the subscriber falls behind; the run never blocks on it.
func (o *Orchestrator) Events() <-chan model.ProgressEvent {
	return o.events
}

// Run executes the full run. A *config.ConfigError return means nothing was
// created on disk; any other error means the run aborted with partial
// output left in place for diagnostics.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Validation gates Idle -> Running; it runs before any allocation so a
	// bad config leaves no trace on disk.
	if err := o.cfg.Validate(); err != nil {
		o.state.Store(int32(StateAborted))
		return err
	}

	seed := o.cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		log.Printf("No seed configured, using %d", seed)
	}

	g, err := gen.NewGenerator(o.cfg.Traffic, seed)
	if err != nil {
		o.state.Store(int32(StateAborted))
		return err
	}
	o.gen = g
	o.smp = sampler.New(o.cfg.Run.SamplingRate)

	o.tasks = []model.Task{
		report.New("top_talkers", report.AddrPairKey, o.cfg.Run.TopN, o.cfg.Traffic.MaxKeys),
	}
	if o.cfg.Run.PeeringReport {
		o.tasks = append(o.tasks,
			report.New("peering", report.ASPairKey, o.cfg.Run.TopN, o.cfg.Traffic.MaxKeys))
	}

	writeFlows := !o.cfg.Run.ReportsOnly
	writeReports := !o.cfg.Run.NoReports

	if writeFlows || writeReports {
		if err := writer.EnsureDir(o.cfg.Output.Dir); err != nil {
			o.state.Store(int32(StateAborted))
			return err
		}
	}

	if err := o.openSinks(writeFlows); err != nil {
		o.state.Store(int32(StateAborted))
		return err
	}

	if o.cfg.Publish.Enabled {
		pub, err := probe.NewPublisher(o.cfg.Publish)
		if err != nil {
			log.Printf("Warning: NATS publisher unavailable, continuing without: %v", err)
		} else {
			o.pub = pub
			defer o.pub.Close()
		}
	}

	if o.cfg.API.Enabled {
		srv := api.NewServer(o.cfg.API.ListenAddr, o.Progress)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		o.proc = proc
	}

	o.startTime = time.Now()
	o.state.Store(int32(StateRunning))
	log.Printf("Run started: %ds at %d fps, %d:1 sampling",
		o.cfg.Run.DurationSeconds, o.cfg.Run.TargetFPS, o.cfg.Run.SamplingRate)

	queue := make(chan item, queueCapacity)
	consumerDone := make(chan error, 1)
	go o.consume(queue, consumerDone)

	progressCtx, stopProgress := context.WithCancel(context.Background())
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		o.progressLoop(progressCtx)
	}()

	p := pacer.New(o.cfg.Run.TargetFPS, o.cfg.Run.DurationSeconds)
	runErr := p.Run(ctx, func(offsetMs int64, count int) (int, error) {
		if o.ioFailed.Load() {
			return 0, errors.New("output sink failed")
		}
		recs := o.gen.Emit(offsetMs, count)
		for _, rec := range recs {
			o.flowsGenerated.Add(1)
			o.bytesGenerated.Add(uint64(rec.Octets))
			decision := o.smp.Sample()
			if decision {
				o.flowsSampled.Add(1)
				o.bytesSampled.Add(uint64(rec.Octets))
			}
			queue <- item{rec: rec, sampled: decision}
		}
		return len(recs), nil
	})
	o.runElapsed = time.Since(o.startTime)

	earlyExit := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if earlyExit {
		log.Printf("Early exit requested after %s, draining", o.runElapsed.Round(time.Millisecond))
		runErr = nil
	}

	// Draining: no new flows admitted; everything queued is still
	// aggregated and written.
	o.state.Store(int32(StateDraining))
	close(queue)
	consumeErr := <-consumerDone

	if pending := o.gen.Pending(); pending > 0 {
		log.Printf("Dropped %d reverse flows scheduled past the run end", pending)
	}

	stopProgress()
	progressWg.Wait()

	closeErr := o.closeSinks()

	// On a sink failure the consumer's error carries the artifact path and
	// underlying OS error; the pacer only reports that the run was stopped.
	if err := firstError(consumeErr, runErr, closeErr); err != nil {
		o.state.Store(int32(StateAborted))
		return err
	}

	if writeReports {
		o.state.Store(int32(StateFinalizing))
		if err := o.writeReports(); err != nil {
			o.state.Store(int32(StateAborted))
			return err
		}
	}

	o.state.Store(int32(StateDone))
	log.Printf("Run complete: %d flows generated, %d sampled in %s",
		o.flowsGenerated.Load(), o.flowsSampled.Load(), o.runElapsed.Round(time.Millisecond))
	return nil
}

// openSinks builds the flow sinks for this run.
func (o *Orchestrator) openSinks(writeFlows bool) error {
	if !writeFlows {
		return nil
	}

	csvW, err := writer.NewCSVWriter(o.cfg.Output.Dir)
	if err != nil {
		return err
	}
	o.sinks = append(o.sinks, csvW)

	if o.cfg.Output.Pcap {
		pcapW, err := writer.NewPcapWriter(o.cfg.Output.Dir, time.Now(), o.cfg.Run.SamplingRate)
		if err != nil {
			return err
		}
		o.sinks = append(o.sinks, pcapW)
	}

	if o.cfg.ClickHouse.Enabled {
		chW, err := writer.NewClickHouseWriter(o.cfg.ClickHouse, time.Now())
		if err != nil {
			return err
		}
		o.sinks = append(o.sinks, chW)
	}
	return nil
}

// consume owns the tasks and sinks: it applies every queued flow in FIFO
// order, so records hit the writers in timestamp order. After the first
// sink failure it keeps draining the queue without writing, so the
// producer is never left blocked.
func (o *Orchestrator) consume(queue <-chan item, done chan<- error) {
	var failed error
	for it := range queue {
		for _, t := range o.tasks {
			t.ObserveRaw(it.rec)
		}
		if bool(it.sampled) {
			for _, t := range o.tasks {
				t.Process(it.rec)
			}
		}

		if failed != nil {
			continue
		}
		for _, s := range o.sinks {
			if err := s.WriteRaw(it.rec); err != nil {
				failed = err
				o.ioFailed.Store(true)
				break
			}
			if bool(it.sampled) {
				if err := s.WriteSampled(it.rec); err != nil {
					failed = err
					o.ioFailed.Store(true)
					break
				}
			}
		}

		if o.pub != nil && bool(it.sampled) && failed == nil {
			if err := o.pub.WriteSampled(it.rec); err != nil {
				log.Printf("Failed to publish flow: %v", err)
			}
		}
	}
	done <- failed
}

func (o *Orchestrator) closeSinks() error {
	var firstErr error
	for _, s := range o.sinks {
		if err := s.Close(); err != nil {
			log.Printf("Failed to close sink: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// writeReports finalizes every task and persists the report artifacts.
func (o *Orchestrator) writeReports() error {
	rw := writer.NewReportWriter(o.cfg.Output.Dir)
	for _, t := range o.tasks {
		rep := t.Finalize()
		fileName := fmt.Sprintf("%s_report.json", t.Name())
		if err := rw.WriteReport(rep, fileName); err != nil {
			return err
		}
		log.Printf("Wrote %s with %d of %d keys", fileName, len(rep.Entries), rep.TotalKeys)
	}
	return rw.WriteSummary(o.summary())
}

func (o *Orchestrator) summary() model.RunSummary {
	elapsed := o.runElapsed.Seconds()
	var achieved float64
	if elapsed > 0 {
		achieved = float64(o.flowsGenerated.Load()) / elapsed
	}
	return model.RunSummary{
		DurationSeconds: o.cfg.Run.DurationSeconds,
		TargetFPS:       o.cfg.Run.TargetFPS,
		SamplingRate:    o.cfg.Run.SamplingRate,
		FlowsGenerated:  o.flowsGenerated.Load(),
		FlowsSampled:    o.flowsSampled.Load(),
		BytesGenerated:  o.bytesGenerated.Load(),
		BytesSampled:    o.bytesSampled.Load(),
		ImpliedBytes:    o.bytesSampled.Load() * uint64(o.cfg.Run.SamplingRate),
		AchievedFPS:     achieved,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// progressLoop publishes one progress event per second, plus a final one at
// shutdown. Slow or absent subscribers never stall the run.
func (o *Orchestrator) progressLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.publishProgress()
		case <-ctx.Done():
			o.publishProgress()
			return
		}
	}
}

func (o *Orchestrator) publishProgress() {
	ev := model.ProgressEvent{
		Elapsed:        time.Since(o.startTime),
		FlowsGenerated: o.flowsGenerated.Load(),
		FlowsSampled:   o.flowsSampled.Load(),
		BytesGenerated: o.bytesGenerated.Load(),
		State:          o.State().String(),
	}
	if o.proc != nil {
		if mi, err := o.proc.MemoryInfo(); err == nil && mi != nil {
			ev.RSSBytes = mi.RSS
		}
		if cp, err := o.proc.CPUPercent(); err == nil {
			ev.CPUPercent = cp
		}
	}

	o.latest.Store(ev)
	select {
	case o.events <- ev:
	default:
	}
	if o.pub != nil {
		if err := o.pub.PublishProgress(ev); err != nil {
			log.Printf("Failed to publish progress: %v", err)
		}
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
