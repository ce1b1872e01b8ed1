package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the DTU ingest service.
//
//	dtu/frame/{device_message_id}           inbound frames (one frame per message)
//	dtu/event/{device_message_id}/changed   stored change events
//	dtu/system/status                       service online/offline status
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "dtu"

	// TopicPrefixFrame is the base for inbound frame topics.
	TopicPrefixFrame = "dtu/frame"

	// TopicPrefixEvent is the base for outbound event topics.
	TopicPrefixEvent = "dtu/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "dtu/system"
)

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceChanged("D1")
//	// Returns: "dtu/event/D1/changed"
type Topics struct{}

// Frame returns the topic a gateway publishes a device's frames to.
//
// Example: dtu/frame/D1
func (Topics) Frame(deviceMessageID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixFrame, deviceMessageID)
}

// DeviceChanged returns the topic for a device's stored change events.
//
// Example: dtu/event/D1/changed
func (Topics) DeviceChanged(deviceMessageID string) string {
	return fmt.Sprintf("%s/%s/changed", TopicPrefixEvent, deviceMessageID)
}

// SystemStatus returns the service status topic.
//
// Example: dtu/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllFrames returns a pattern matching every device's frame topic.
//
// Pattern: dtu/frame/+
func (Topics) AllFrames() string {
	return fmt.Sprintf("%s/+", TopicPrefixFrame)
}

// AllDeviceChanges returns a pattern matching every change event.
//
// Pattern: dtu/event/+/changed
func (Topics) AllDeviceChanges() string {
	return fmt.Sprintf("%s/+/changed", TopicPrefixEvent)
}

// FrameDevice extracts the device message id from a frame topic.
// It returns false for topics outside dtu/frame/.
func (Topics) FrameDevice(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixFrame+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
