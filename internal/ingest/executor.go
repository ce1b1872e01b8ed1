package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-dtu/internal/changedetect"
	"github.com/nerrad567/gray-logic-dtu/internal/device"
)

// Outcome is what happened to a frame.
type Outcome int

// Outcomes.
const (
	// Dropped means the frame produced no write.
	Dropped Outcome = iota

	// Stored means a new current row was written.
	Stored

	// DuplicateStamped means the current row was stamped as re-observed.
	DuplicateStamped
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case DuplicateStamped:
		return "duplicate_stamped"
	default:
		return "dropped"
	}
}

// Logger defines the logging interface used by the ingest components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor applies a change-detection verdict to the snapshot store and
// the fingerprint cache.
//
// Apply must not run concurrently for the same DeviceMessageID; the
// Processor guarantees this with its per-key lock.
type Executor struct {
	store    device.SnapshotStore
	detector *changedetect.Detector
	logger   Logger
	metrics  *Metrics
}

// NewExecutor creates an executor.
func NewExecutor(store device.SnapshotStore, detector *changedetect.Detector) *Executor {
	return &Executor{
		store:    store,
		detector: detector,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetMetrics sets the collectors updated by the executor.
func (e *Executor) SetMetrics(m *Metrics) {
	e.metrics = m
}

// Apply persists snap according to result.
//
// FirstSeen and Changed supersede the device's current row, save snap as
// the new current row and then commit the fingerprint to the cache. A
// store failure aborts with ErrPersistenceFailure before the cache is
// touched. A cache failure after the save is logged only: the row stands
// and the next observation of the device is FirstSeen.
//
// Unchanged stamps the cached row as re-observed and writes nothing else.
// If that row is no longer current the snapshot is stored as new and the
// verdict is reported as FirstSeen.
//
// Parameters:
//   - ctx: Bounds all store and cache I/O
//   - snap: Decoded snapshot; RowID and Status are set when stored
//   - result: Verdict from Detector.Evaluate or Reconcile
//
// Returns:
//   - Outcome: Stored or DuplicateStamped on success, Dropped on error
//   - changedetect.Verdict: The verdict acted on; FirstSeen when an
//     Unchanged verdict had no current row to stamp
//   - error: Wraps ErrPersistenceFailure on store errors
func (e *Executor) Apply(ctx context.Context, snap *device.Snapshot, result changedetect.Result) (Outcome, changedetect.Verdict, error) {
	verdict := result.Verdict
	if verdict == changedetect.Unchanged {
		if result.Entry != nil {
			err := e.store.UpdateStatus(ctx, result.Entry.RowID, device.StatusDuplicateObserved)
			switch {
			case err == nil:
				e.metrics.stamped()
				e.logger.Debug("duplicate observation stamped",
					"device_message_id", snap.DeviceMessageID,
					"row_id", result.Entry.RowID,
				)
				snap.RowID = result.Entry.RowID
				return DuplicateStamped, verdict, nil
			case errors.Is(err, device.ErrSnapshotNotFound):
				e.logger.Warn("cached row missing, storing snapshot as new",
					"device_message_id", snap.DeviceMessageID,
					"row_id", result.Entry.RowID,
				)
			default:
				return Dropped, verdict, fmt.Errorf("%w: stamping %s: %w", ErrPersistenceFailure, result.Entry.RowID, err)
			}
		}
		verdict = changedetect.FirstSeen
	}

	outcome, err := e.storeNew(ctx, snap)
	return outcome, verdict, err
}

// storeNew supersedes the current row, saves snap and commits the cache.
func (e *Executor) storeNew(ctx context.Context, snap *device.Snapshot) (Outcome, error) {
	superseded, err := e.store.SupersedeCurrent(ctx, snap.DeviceMessageID)
	if err != nil {
		return Dropped, fmt.Errorf("%w: superseding %s: %w", ErrPersistenceFailure, snap.DeviceMessageID, err)
	}

	rowID, err := e.store.Save(ctx, snap)
	if err != nil {
		return Dropped, fmt.Errorf("%w: saving %s: %w", ErrPersistenceFailure, snap.DeviceMessageID, err)
	}
	e.metrics.stored()

	if err := e.detector.Commit(ctx, snap, rowID); err != nil {
		e.metrics.cacheError("commit")
		e.logger.Warn("fingerprint commit failed, next observation will be first seen",
			"device_message_id", snap.DeviceMessageID,
			"stage", "commit",
			"row_id", rowID,
			"error", err,
		)
	}

	e.logger.Info("snapshot stored",
		"device_message_id", snap.DeviceMessageID,
		"row_id", rowID,
		"fingerprint", snap.Fingerprint,
		"superseded", superseded,
	)
	return Stored, nil
}

// Reconcile derives a verdict from the store's current row. It is used in
// place of the cache when the cache is unavailable.
//
// Returns:
//   - changedetect.Result: Unchanged or Changed against the current row,
//     FirstSeen when the device has none
//   - error: Wraps ErrPersistenceFailure when the store cannot be read
func (e *Executor) Reconcile(ctx context.Context, snap *device.Snapshot) (changedetect.Result, error) {
	current, err := e.store.GetCurrent(ctx, snap.DeviceMessageID)
	if errors.Is(err, device.ErrSnapshotNotFound) {
		return changedetect.Result{Verdict: changedetect.FirstSeen}, nil
	}
	if err != nil {
		return changedetect.Result{}, fmt.Errorf("%w: reading current %s: %w", ErrPersistenceFailure, snap.DeviceMessageID, err)
	}

	entry := &changedetect.Entry{Fingerprint: current.Fingerprint, RowID: current.RowID}
	if strings.EqualFold(current.Fingerprint, snap.Fingerprint) {
		return changedetect.Result{Verdict: changedetect.Unchanged, Entry: entry}, nil
	}
	return changedetect.Result{Verdict: changedetect.Changed, Entry: entry}, nil
}
