package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dtu/internal/changedetect"
	"github.com/nerrad567/gray-logic-dtu/internal/device"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/mqtt"
)

// ReadingsSink receives the numeric readings of every decoded snapshot.
// Implementations must not block.
type ReadingsSink interface {
	WriteReadings(deviceID, deviceMessageID, model string, readings map[string]float64, at time.Time)
}

// EventPublisher is told about every stored change.
type EventPublisher interface {
	PublishChange(snap *device.Snapshot, verdict changedetect.Verdict) error
}

// Publisher is the subset of the MQTT client used for change events.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ChangeEvent is the JSON body published for a stored change.
type ChangeEvent struct {
	DeviceID        string         `json:"device_id"`
	DeviceMessageID string         `json:"device_message_id"`
	Model           string         `json:"model"`
	RowID           string         `json:"row_id"`
	Verdict         string         `json:"verdict"`
	Fingerprint     string         `json:"fingerprint"`
	CapturedAt      time.Time      `json:"captured_at"`
	Attributes      map[string]any `json:"attributes"`
}

// MQTTEvents publishes change events to dtu/event/<device_message_id>/changed.
type MQTTEvents struct {
	pub    Publisher
	qos    byte
	topics mqtt.Topics
}

// NewMQTTEvents creates an event publisher on an MQTT client.
func NewMQTTEvents(pub Publisher, qos byte) *MQTTEvents {
	return &MQTTEvents{pub: pub, qos: qos}
}

// PublishChange implements EventPublisher.
func (m *MQTTEvents) PublishChange(snap *device.Snapshot, verdict changedetect.Verdict) error {
	payload, err := json.Marshal(ChangeEvent{
		DeviceID:        snap.DeviceID,
		DeviceMessageID: snap.DeviceMessageID,
		Model:           snap.Model,
		RowID:           snap.RowID,
		Verdict:         verdict.String(),
		Fingerprint:     snap.Fingerprint,
		CapturedAt:      snap.CapturedAt,
		Attributes:      snap.Attributes,
	})
	if err != nil {
		return fmt.Errorf("marshalling change event: %w", err)
	}

	return m.pub.Publish(m.topics.DeviceChanged(snap.DeviceMessageID), payload, m.qos, false)
}
