package device

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-dtu/internal/frame"
)

// PayloadFactory returns an empty payload for one device model.
type PayloadFactory func() Payload

// Registry maps device types to their payload factories.
//
// The set of models is fixed when the registry is built; a Registry is
// read-only afterwards and safe for concurrent use.
type Registry struct {
	factories map[frame.DeviceType]PayloadFactory
	now       func() time.Time
}

// NewRegistry returns a registry holding every supported device model.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[frame.DeviceType]PayloadFactory{
			frame.DeviceTypeSmokeSensor:   func() Payload { return &SmokeSensor{} },
			frame.DeviceTypeScreenMonitor: func() Payload { return &ScreenMonitor{} },
		},
		now: time.Now,
	}
}

// Supports reports whether a decoder exists for t.
func (r *Registry) Supports(t frame.DeviceType) bool {
	_, ok := r.factories[t]
	return ok
}

// Types returns the supported device types in ascending order.
func (r *Registry) Types() []frame.DeviceType {
	out := make([]frame.DeviceType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Decode builds a Snapshot from a parsed message.
//
// The envelope fills the redundancy fields; a message without a capture
// time is stamped with the receive time. Every data record is offered to
// the payload, which ignores codes it does not use. The returned snapshot
// has status StatusCurrent and no RowID.
//
// Parameters:
//   - msg: Parsed frame
//
// Returns:
//   - *Snapshot: Decoded snapshot with Payload, Attributes and Fingerprint set
//   - error: ErrUnsupportedDeviceType when no model matches msg.DeviceType
func (r *Registry) Decode(msg *frame.Message) (*Snapshot, error) {
	factory, ok := r.factories[msg.DeviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDeviceType, msg.DeviceType)
	}

	payload := factory()
	for _, rec := range msg.Records {
		payload.Apply(rec)
	}

	capturedAt := msg.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = r.now()
	}

	return &Snapshot{
		DeviceID:        msg.DeviceID,
		DeviceMessageID: msg.DeviceMessageID,
		DeviceType:      msg.DeviceType,
		Model:           msg.DeviceType.String(),
		CapturedAt:      capturedAt.UTC(),
		Status:          StatusCurrent,
		Fingerprint:     payload.Fingerprint(),
		Attributes:      payload.Attributes(),
		Payload:         payload,
	}, nil
}
