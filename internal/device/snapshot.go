package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dtu/internal/frame"
)

// Status is the lifecycle state of a persisted snapshot row.
type Status string

// Snapshot statuses.
const (
	// StatusCurrent marks the one authoritative row for a device.
	StatusCurrent Status = "current"

	// StatusSuperseded marks a row replaced by a newer change.
	StatusSuperseded Status = "superseded"

	// StatusDuplicateObserved is not stored in the status column. Passing it
	// to UpdateStatus records that an unchanged observation was seen: the
	// row's duplicate counter is incremented and its last-observed time set.
	StatusDuplicateObserved Status = "duplicate_observed"
)

// Valid reports whether s is a recognised status.
func (s Status) Valid() bool {
	switch s {
	case StatusCurrent, StatusSuperseded, StatusDuplicateObserved:
		return true
	}
	return false
}

// Decodable payloads consume data records. Codes a model does not use are ignored.
type Decodable interface {
	Apply(rec frame.DataRecord)
}

// ChangeDetectable payloads expose the fingerprint compared by change detection.
type ChangeDetectable interface {
	Fingerprint() string
}

// Persistable payloads expose what is written to storage.
type Persistable interface {
	// Attributes is the JSON document stored with the row. Unset
	// attributes appear with a nil value.
	Attributes() map[string]any

	// Readings are the numeric fields written to the time-series sink.
	// Unset attributes are omitted.
	Readings() map[string]float64
}

// Payload is the model-specific part of a snapshot.
type Payload interface {
	Decodable
	ChangeDetectable
	Persistable
}

// Snapshot is one decoded observation of a device.
//
// Snapshots built by Registry.Decode carry a Payload. Snapshots read back
// from a SnapshotStore carry the stored Attributes instead.
type Snapshot struct {
	// RowID is the store's identifier, empty until saved.
	RowID string `json:"id"`

	DeviceID        string           `json:"device_id"`
	DeviceMessageID string           `json:"device_message_id"`
	DeviceType      frame.DeviceType `json:"device_type"`
	Model           string           `json:"model"`

	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at,omitzero"`

	Status             Status     `json:"status"`
	DuplicatesObserved int        `json:"duplicates_observed"`
	LastObservedAt     *time.Time `json:"last_observed_at,omitempty"`
	SupersededAt       *time.Time `json:"superseded_at,omitempty"`

	Fingerprint string         `json:"fingerprint"`
	Attributes  map[string]any `json:"attributes"`

	Payload Payload `json:"-"`
}

// Readings returns the numeric readings of the payload, or nil for a
// snapshot loaded from storage.
func (s *Snapshot) Readings() map[string]float64 {
	if s.Payload == nil {
		return nil
	}
	return s.Payload.Readings()
}

// Validate checks the fields every stored snapshot needs.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if s.DeviceMessageID == "" {
		return fmt.Errorf("%w: device message id is required", ErrInvalidSnapshot)
	}
	if s.DeviceType == 0 {
		return fmt.Errorf("%w: device type is required", ErrInvalidSnapshot)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured_at is required", ErrInvalidSnapshot)
	}
	return nil
}
