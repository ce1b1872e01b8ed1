package changedetect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dtu/internal/device"
)

// DefaultKeyPrefix is prepended to the DeviceMessageID to form the cache key.
const DefaultKeyPrefix = "dtu:device:"

// DefaultTTL is the cache horizon used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Verdict is the outcome of comparing a snapshot with the cache.
type Verdict int

// Verdicts.
const (
	FirstSeen Verdict = iota
	Changed
	Unchanged
)

// String returns the verdict name used in logs and metric labels.
func (v Verdict) String() string {
	switch v {
	case FirstSeen:
		return "first_seen"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Entry is the cached state of one device.
type Entry struct {
	Fingerprint string
	RowID       string
}

// Result is returned by Evaluate. Entry is the cached entry, nil for FirstSeen.
type Result struct {
	Verdict Verdict
	Entry   *Entry
}

// Store is the key-value backend of the detector.
type Store interface {
	// Lookup returns the entry for key. found is false when the key is
	// absent or either field is missing.
	Lookup(ctx context.Context, key string) (entry Entry, found bool, err error)

	// Put writes both fields and sets the TTL atomically.
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Logger defines the logging interface used by the Detector.
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

// Config configures a Detector.
type Config struct {
	KeyPrefix string
	TTL       time.Duration
}

// Detector evaluates snapshots against the fingerprint cache.
//
// A Detector is safe for concurrent use. Evaluate followed by Commit is not
// atomic; callers serialise them per DeviceMessageID.
type Detector struct {
	store  Store
	prefix string
	ttl    time.Duration
	logger Logger
}

// NewDetector creates a detector. Zero config values fall back to
// DefaultKeyPrefix and DefaultTTL.
func NewDetector(store Store, cfg Config) *Detector {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Detector{
		store:  store,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the detector.
func (d *Detector) SetLogger(logger Logger) {
	d.logger = logger
}

// Key returns the cache key for a device.
func (d *Detector) Key(deviceMessageID string) string {
	return d.prefix + deviceMessageID
}

// Evaluate compares snap with the cached entry for its DeviceMessageID.
//
// Parameters:
//   - ctx: Bounds the cache read
//   - snap: Decoded snapshot
//
// Returns:
//   - Result: The verdict and, unless FirstSeen, the cached entry
//   - error: ErrCacheUnavailable when the store failed; the result is then FirstSeen
func (d *Detector) Evaluate(ctx context.Context, snap *device.Snapshot) (Result, error) {
	entry, found, err := d.store.Lookup(ctx, d.Key(snap.DeviceMessageID))
	if err != nil {
		return Result{Verdict: FirstSeen}, fmt.Errorf("%w: lookup %s: %w", ErrCacheUnavailable, snap.DeviceMessageID, err)
	}
	if !found {
		return Result{Verdict: FirstSeen}, nil
	}

	if strings.EqualFold(entry.Fingerprint, snap.Fingerprint) {
		return Result{Verdict: Unchanged, Entry: &entry}, nil
	}
	return Result{Verdict: Changed, Entry: &entry}, nil
}

// Commit records snap's fingerprint and rowID as the device's current entry
// and refreshes the TTL.
//
// Returns:
//   - error: ErrInvalidEntry for an empty rowID, ErrCacheUnavailable on store failure
func (d *Detector) Commit(ctx context.Context, snap *device.Snapshot, rowID string) error {
	if rowID == "" {
		return fmt.Errorf("%w: empty row id for %s", ErrInvalidEntry, snap.DeviceMessageID)
	}

	entry := Entry{Fingerprint: snap.Fingerprint, RowID: rowID}
	if err := d.store.Put(ctx, d.Key(snap.DeviceMessageID), entry, d.ttl); err != nil {
		return fmt.Errorf("%w: commit %s: %w", ErrCacheUnavailable, snap.DeviceMessageID, err)
	}

	d.logger.Debug("fingerprint committed",
		"device_message_id", snap.DeviceMessageID,
		"fingerprint", snap.Fingerprint,
		"row_id", rowID,
	)
	return nil
}

// Forget drops the cached entry of a device. The next observation is FirstSeen.
func (d *Detector) Forget(ctx context.Context, deviceMessageID string) error {
	if err := d.store.Delete(ctx, d.Key(deviceMessageID)); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrCacheUnavailable, deviceMessageID, err)
	}
	return nil
}

// Ping reports whether the cache backend is reachable.
func (d *Detector) Ping(ctx context.Context) error {
	if err := d.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}
