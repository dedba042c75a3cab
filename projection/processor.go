package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/ledger/internal/signaling"
	"github.com/dogmatiq/ledger/internal/telemetry"
)

// DefaultPollInterval is the interval between polls when no interval is
// configured.
const DefaultPollInterval = time.Second

// CursorName is the name under which a [Processor] records its cursor within
// its [PositionStore].
const CursorName = reservedPrefix + "processor"

// State is the state of a [Processor].
type State int

const (
	// Stopped is the state of a processor that is not running.
	Stopped State = iota

	// Running is the state of a processor that is polling for events.
	Running

	// Stopping is the state of a processor that is waiting for an in-flight
	// batch to finish before stopping.
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BatchResult is the result of processing a single batch of events.
type BatchResult struct {
	Result

	// Cursor is the global sequence of the last event scanned by the
	// processor, or zero if it has not scanned any events.
	Cursor uint64
}

// Processor polls the event log for new events and passes them to an
// [AsyncExecutor].
//
// The processor's cursor bounds how far it has scanned the log. It is
// independent of the positions of the individual projections.
type Processor struct {
	Events       EventLoader
	Executor     *AsyncExecutor
	Positions    PositionStore
	BatchSize    int
	PollInterval time.Duration
	Telemetry    *telemetry.Provider

	once     sync.Once
	telem    *telemetry.Recorder
	batches  telemetry.Instrument[int64]
	duration telemetry.Instrument[int64]

	// batch is held while a batch is in flight.
	batch sync.Mutex

	// nudge is rung to poll without waiting for the interval to elapse.
	nudge signaling.Doorbell

	m     sync.Mutex
	state State
	stop  *signaling.Latch
	done  *signaling.Latch
}

func (p *Processor) init() {
	p.once.Do(func() {
		p.telem = p.Telemetry.Recorder("processor")
		p.batches = p.telem.Counter("processor.batches", "{batch}", "The number of non-empty batches processed.")
		p.duration = p.telem.Histogram("processor.batch.duration", "ms", "The time taken to process each non-empty batch.")
	})
}

// State returns the processor's current state.
func (p *Processor) State() State {
	p.m.Lock()
	defer p.m.Unlock()
	return p.state
}

// Start begins polling in the background. It processes a batch immediately,
// then polls at the configured interval, measured from the end of each pass.
//
// It has no effect if the processor is already running or stopping. Polling
// stops when [Processor.Stop] is called or ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	p.init()

	p.m.Lock()
	defer p.m.Unlock()

	if p.state != Stopped {
		return
	}

	p.state = Running
	p.stop = &signaling.Latch{}
	p.done = &signaling.Latch{}

	go p.run(ctx, p.stop, p.done)
}

// Stop stops polling, blocking until any in-flight batch has finished,
// including one started by [Processor.ProcessBatch].
func (p *Processor) Stop() {
	defer func() {
		p.batch.Lock()
		p.batch.Unlock() // nolint:staticcheck
	}()

	p.m.Lock()

	if p.state == Stopped {
		p.m.Unlock()
		return
	}

	p.state = Stopping
	stop, done := p.stop, p.done
	p.m.Unlock()

	stop.Set()
	<-done.Done()
}

// Run polls until ctx is canceled or [Processor.Stop] is called.
func (p *Processor) Run(ctx context.Context) error {
	p.Start(ctx)

	p.m.Lock()
	done := p.done
	p.m.Unlock()

	select {
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	case <-done.Done():
		return nil
	}
}

// Nudge causes a running processor to poll without waiting for the poll
// interval to elapse.
func (p *Processor) Nudge() {
	p.nudge.Ring()
}

func (p *Processor) run(ctx context.Context, stop, done *signaling.Latch) {
	defer func() {
		p.m.Lock()
		p.state = Stopped
		p.m.Unlock()
		done.Set()
	}()

	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.telem.Info(
		ctx,
		"processor.started",
		"projection processor started",
		telemetry.Duration("poll_interval", interval),
	)

	for {
		p.tick(ctx)

		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			p.telem.Info(ctx, "processor.stopped", "projection processor stopped: context canceled")
			return
		case <-stop.Done():
			timer.Stop()
			p.telem.Info(ctx, "processor.stopped", "projection processor stopped")
			return
		case <-p.nudge.Rung():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	if !p.batch.TryLock() {
		p.telem.Debug(ctx, "processor.tick.skipped", "skipped poll, a batch is already in flight")
		return
	}
	defer p.batch.Unlock()

	if _, err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
		p.telem.Error(ctx, "processor.batch.failed", err)
	}
}

// ProcessBatch loads the next batch of events after the processor's cursor
// and passes them to the executor.
//
// If any events are loaded the cursor is advanced to the last of them. An
// empty batch leaves the cursor unchanged.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchResult, error) {
	p.init()

	p.batch.Lock()
	defer p.batch.Unlock()

	return p.processBatch(ctx)
}

func (p *Processor) processBatch(ctx context.Context) (res BatchResult, err error) {
	cursor, _, err := p.Positions.LoadPosition(ctx, CursorName)
	if err != nil {
		return res, fmt.Errorf("unable to load processor cursor: %w", err)
	}

	res.Cursor = cursor.LastProcessedSequence

	size := p.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	events, err := p.Events.LoadEvents(ctx, cursor.Next(), size)
	if err != nil {
		return res, fmt.Errorf("unable to load events: %w", err)
	}

	if len(events) == 0 {
		return res, nil
	}

	ctx, span := p.telem.StartSpan(
		ctx,
		"processor.batch",
		telemetry.Int("event_count", len(events)),
		telemetry.Int("from", cursor.Next()),
	)
	defer span.End()

	res.Result, err = p.Executor.ProcessEvents(ctx, events)
	if err != nil {
		span.SetError(err)
		return res, err
	}

	last := events[len(events)-1].GlobalSequence

	if err := p.Positions.SavePosition(
		ctx,
		CursorName,
		Position{
			LastProcessedSequence: last,
			Processed:             true,
		},
	); err != nil {
		span.SetError(err)
		return res, fmt.Errorf("unable to save processor cursor: %w", err)
	}

	res.Cursor = last

	p.batches(ctx, 1)
	p.duration(ctx, span.Elapsed().Milliseconds())

	p.telem.Debug(
		ctx,
		"processor.batch.ok",
		"processed batch",
		telemetry.Int("event_count", res.Events),
		telemetry.Int("succeeded", res.Succeeded),
		telemetry.Int("failed", res.Failed),
		telemetry.Int("skipped", res.Skipped),
		telemetry.Int("cursor", last),
	)

	return res, nil
}
