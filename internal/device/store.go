package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dtu/internal/frame"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// SnapshotStore persists device snapshots.
//
// Implementations must be safe for concurrent use. Callers serialise
// writes per DeviceMessageID; the store itself only guarantees that each
// call is atomic.
type SnapshotStore interface {
	// Save inserts snap as a new current row and returns its row ID.
	Save(ctx context.Context, snap *Snapshot) (string, error)

	// UpdateStatus changes the status of one row. StatusDuplicateObserved
	// leaves the status untouched and stamps the row as re-observed; only
	// a current row can be stamped. Returns ErrSnapshotNotFound when no
	// matching row exists.
	UpdateStatus(ctx context.Context, rowID string, status Status) error

	// SupersedeCurrent marks every current row of the device as
	// superseded and returns how many rows changed (zero is not an error).
	SupersedeCurrent(ctx context.Context, deviceMessageID string) (int64, error)

	// GetCurrent returns the current row of the device, or ErrSnapshotNotFound.
	GetCurrent(ctx context.Context, deviceMessageID string) (*Snapshot, error)

	// ListRecent returns up to limit rows of the device, newest first.
	ListRecent(ctx context.Context, deviceMessageID string, limit int) ([]Snapshot, error)
}

// SQLiteSnapshotStore implements SnapshotStore on the dtu_device_snapshots table.
type SQLiteSnapshotStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// NewSQLiteSnapshotStore creates a snapshot store.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteSnapshotStore: Store ready for use
func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Save inserts snap with status current. A missing RowID is generated;
// on success snap.RowID, snap.Status and snap.CreatedAt are updated.
//
// The one-current-row index rejects the insert if the device still has a
// current row, so callers supersede first.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", err
	}

	attrs := snap.Attributes
	if attrs == nil && snap.Payload != nil {
		attrs = snap.Payload.Attributes()
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshalling attributes: %w", err)
	}

	rowID := snap.RowID
	if rowID == "" {
		rowID = s.newID()
	}
	createdAt := s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dtu_device_snapshots
		 (id, device_id, device_message_id, device_type, model, fingerprint, attributes, status, captured_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowID,
		snap.DeviceID,
		snap.DeviceMessageID,
		int(snap.DeviceType),
		snap.Model,
		snap.Fingerprint,
		string(attrsJSON),
		string(StatusCurrent),
		snap.CapturedAt.UnixMilli(),
		createdAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting snapshot: %w", err)
	}

	snap.RowID = rowID
	snap.Status = StatusCurrent
	snap.CreatedAt = createdAt
	return rowID, nil
}

// UpdateStatus implements SnapshotStore.
func (s *SQLiteSnapshotStore) UpdateStatus(ctx context.Context, rowID string, status Status) error {
	now := s.now().UTC().UnixMilli()

	var (
		result sql.Result
		err    error
	)
	switch status {
	case StatusDuplicateObserved:
		result, err = s.db.ExecContext(ctx,
			`UPDATE dtu_device_snapshots
			 SET duplicates_observed = duplicates_observed + 1, last_observed_at = ?
			 WHERE id = ? AND status = ?`,
			now, rowID, string(StatusCurrent),
		)
	case StatusSuperseded:
		result, err = s.db.ExecContext(ctx,
			"UPDATE dtu_device_snapshots SET status = ?, superseded_at = ? WHERE id = ?",
			string(StatusSuperseded), now, rowID,
		)
	case StatusCurrent:
		result, err = s.db.ExecContext(ctx,
			"UPDATE dtu_device_snapshots SET status = ?, superseded_at = NULL WHERE id = ?",
			string(StatusCurrent), rowID,
		)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err != nil {
		return fmt.Errorf("updating snapshot status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, rowID)
	}
	return nil
}

// SupersedeCurrent implements SnapshotStore.
func (s *SQLiteSnapshotStore) SupersedeCurrent(ctx context.Context, deviceMessageID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE dtu_device_snapshots
		 SET status = ?, superseded_at = ?
		 WHERE device_message_id = ? AND status = ?`,
		string(StatusSuperseded),
		s.now().UTC().UnixMilli(),
		deviceMessageID,
		string(StatusCurrent),
	)
	if err != nil {
		return 0, fmt.Errorf("superseding current snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

const selectColumns = `id, device_id, device_message_id, device_type, model, fingerprint, attributes,
	status, duplicates_observed, last_observed_at, captured_at, created_at, superseded_at`

// GetCurrent implements SnapshotStore.
func (s *SQLiteSnapshotStore) GetCurrent(ctx context.Context, deviceMessageID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+`
		 FROM dtu_device_snapshots
		 WHERE device_message_id = ? AND status = ?
		 ORDER BY seq DESC
		 LIMIT 1`,
		deviceMessageID,
		string(StatusCurrent),
	)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no current row for %s", ErrSnapshotNotFound, deviceMessageID)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Get returns one row by ID, or ErrSnapshotNotFound.
func (s *SQLiteSnapshotStore) Get(ctx context.Context, rowID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM dtu_device_snapshots WHERE id = ?`,
		rowID,
	)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, rowID)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListRecent implements SnapshotStore. limit defaults to 50 and is capped at 200.
func (s *SQLiteSnapshotStore) ListRecent(ctx context.Context, deviceMessageID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM dtu_device_snapshots
		 WHERE device_message_id = ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		deviceMessageID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snaps, nil
}

// CountByStatus returns how many rows of the device have the given status.
func (s *SQLiteSnapshotStore) CountByStatus(ctx context.Context, deviceMessageID string, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dtu_device_snapshots WHERE device_message_id = ? AND status = ?",
		deviceMessageID,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap         Snapshot
		deviceType   int
		attrsJSON    string
		status       string
		lastObserved sql.NullInt64
		superseded   sql.NullInt64
		capturedAt   int64
		createdAt    int64
	)

	err := row.Scan(
		&snap.RowID,
		&snap.DeviceID,
		&snap.DeviceMessageID,
		&deviceType,
		&snap.Model,
		&snap.Fingerprint,
		&attrsJSON,
		&status,
		&snap.DuplicatesObserved,
		&lastObserved,
		&capturedAt,
		&createdAt,
		&superseded,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(attrsJSON), &snap.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshalling attributes: %w", err)
	}

	snap.DeviceType = frame.DeviceType(deviceType)
	snap.Status = Status(status)
	snap.CapturedAt = time.UnixMilli(capturedAt).UTC()
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	snap.LastObservedAt = nullableTime(lastObserved)
	snap.SupersededAt = nullableTime(superseded)
	return &snap, nil
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
