package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/gray-logic-dtu/internal/changedetect"
	"github.com/nerrad567/gray-logic-dtu/internal/device"
	"github.com/nerrad567/gray-logic-dtu/internal/frame"
)

// Defaults applied by NewProcessor for zero config values.
const (
	DefaultFrameTimeout = 5 * time.Second
	DefaultMaxInFlight  = 256
)

// Config configures a Processor.
type Config struct {
	// FrameTimeout bounds lock wait and all I/O of one frame.
	FrameTimeout time.Duration

	// MaxInFlight bounds concurrently processed frames across all sources.
	MaxInFlight int

	// StoreFallback consults the store's current row when the cache is unavailable.
	StoreFallback bool
}

// Processor runs frames through parse, decode, change detection and
// persistence.
//
// Frames for different devices run in parallel. Frames for the same
// DeviceMessageID are serialised from Evaluate through Apply, so at most
// one current row exists per device.
type Processor struct {
	cfg      Config
	registry *device.Registry
	detector *changedetect.Detector
	executor *Executor
	locks    *keyLock
	sem      *semaphore.Weighted

	readings ReadingsSink
	events   EventPublisher
	metrics  *Metrics
	logger   Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config, registry *device.Registry, detector *changedetect.Detector, executor *Executor) *Processor {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	return &Processor{
		cfg:      cfg,
		registry: registry,
		detector: detector,
		executor: executor,
		locks:    newKeyLock(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the processor.
func (p *Processor) SetLogger(logger Logger) {
	p.logger = logger
}

// SetMetrics sets the collectors updated by the processor.
func (p *Processor) SetMetrics(m *Metrics) {
	p.metrics = m
}

// SetReadingsSink sets where numeric readings are written. nil disables.
func (p *Processor) SetReadingsSink(sink ReadingsSink) {
	p.readings = sink
}

// SetEventPublisher sets where stored changes are announced. nil disables.
func (p *Processor) SetEventPublisher(pub EventPublisher) {
	p.events = pub
}

// Process handles one frame synchronously.
//
// Every failure is local to the frame: it is logged, counted and
// returned, and the caller keeps reading its source.
//
// Parameters:
//   - ctx: Parent context; the frame timeout is applied on top
//   - raw: Frame body without stream length prefix
//
// Returns:
//   - Outcome: Stored, DuplicateStamped or Dropped
//   - error: frame.ErrMalformedFrame, device.ErrUnsupportedDeviceType,
//     ErrPersistenceFailure or ErrFrameTimeout (wrapped)
func (p *Processor) Process(ctx context.Context, raw []byte) (Outcome, error) {
	start := time.Now()
	p.metrics.received()
	defer func() {
		p.metrics.observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FrameTimeout)
	defer cancel()

	msg, err := frame.Parse(raw)
	if err != nil {
		p.drop(ReasonMalformed, "parse", "", err)
		return Dropped, err
	}

	snap, err := p.registry.Decode(msg)
	if err != nil {
		p.drop(ReasonUnsupported, "decode", msg.DeviceMessageID, err)
		return Dropped, err
	}

	if p.readings != nil {
		p.readings.WriteReadings(snap.DeviceID, snap.DeviceMessageID, snap.Model, snap.Readings(), snap.CapturedAt)
	}

	outcome, verdict, err := p.evaluateAndApply(ctx, snap)
	if err != nil {
		err = p.classify(ctx, err)
		reason := ReasonPersistence
		switch {
		case errors.Is(err, ErrFrameTimeout):
			reason = ReasonTimeout
		case errors.Is(err, context.Canceled):
			reason = ReasonCancelled
		}
		p.drop(reason, "persist", snap.DeviceMessageID, err)
		return Dropped, err
	}

	p.metrics.verdict(verdict.String())

	if outcome == Stored && p.events != nil {
		if err := p.events.PublishChange(snap, verdict); err != nil {
			p.logger.Warn("change event publish failed",
				"device_message_id", snap.DeviceMessageID,
				"stage", "publish",
				"error", err,
			)
		}
	}
	return outcome, nil
}

// evaluateAndApply holds the device's key lock across Evaluate and Apply.
func (p *Processor) evaluateAndApply(ctx context.Context, snap *device.Snapshot) (Outcome, changedetect.Verdict, error) {
	unlock, err := p.locks.Lock(ctx, snap.DeviceMessageID)
	if err != nil {
		return Dropped, changedetect.FirstSeen, fmt.Errorf("waiting for device lock: %w", err)
	}
	defer unlock()

	result, err := p.detector.Evaluate(ctx, snap)
	if err != nil {
		p.metrics.cacheError("lookup")
		p.logger.Warn("fingerprint cache unavailable",
			"device_message_id", snap.DeviceMessageID,
			"stage", "evaluate",
			"fallback", p.cfg.StoreFallback,
			"error", err,
		)
		if p.cfg.StoreFallback {
			result, err = p.executor.Reconcile(ctx, snap)
			if err != nil {
				return Dropped, changedetect.FirstSeen, err
			}
		}
	}

	return p.executor.Apply(ctx, snap, result)
}

// classify marks errors caused by the frame deadline with ErrFrameTimeout.
func (p *Processor) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrFrameTimeout) {
		return fmt.Errorf("%w after %s: %w", ErrFrameTimeout, p.cfg.FrameTimeout, err)
	}
	return err
}

func (p *Processor) drop(reason, stage, deviceMessageID string, err error) {
	p.metrics.dropped(reason)

	args := []any{"stage", stage, "reason", reason, "error", err}
	if deviceMessageID != "" {
		args = append(args, "device_message_id", deviceMessageID)
	}
	if reason == ReasonPersistence || reason == ReasonTimeout {
		p.logger.Error("frame dropped", args...)
		return
	}
	p.logger.Warn("frame dropped", args...)
}

// Submit processes raw on its own goroutine.
//
// Submit blocks while MaxInFlight frames are being processed, which pushes
// back on the caller's source. raw is copied, so the caller may reuse its
// buffer as soon as Submit returns. Cancelling ctx abandons the wait but
// does not cancel a frame already started.
//
// Returns:
//   - error: ErrProcessorClosed after Close, or ctx.Err() while waiting
func (p *Processor) Submit(ctx context.Context, raw []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProcessorClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	buf := bytes.Clone(raw)
	frameCtx := context.WithoutCancel(ctx)
	p.metrics.inFlight(1)

	go func() {
		defer func() {
			p.metrics.inFlight(-1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		_, _ = p.Process(frameCtx, buf) //nolint:errcheck // Logged and counted by Process
	}()
	return nil
}

// Close stops accepting frames and waits for in-flight frames to finish
// or ctx to expire.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight frames: %w", ctx.Err())
	}
}
