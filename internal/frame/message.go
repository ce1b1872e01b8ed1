package frame

import (
	"fmt"
	"time"
)

// DeviceType identifies the device model that produced a frame.
type DeviceType uint16

// Known device types. The set is closed; anything else is unsupported.
const (
	DeviceTypeSmokeSensor   DeviceType = 0x0501
	DeviceTypeScreenMonitor DeviceType = 0x0801
)

// String returns the model name used in logs and the snapshot table.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeSmokeSensor:
		return "smoke_sensor"
	case DeviceTypeScreenMonitor:
		return "screen_monitor"
	default:
		return fmt.Sprintf("unknown_%04x", uint16(t))
	}
}

// DataType identifies the meaning of a data record.
type DataType uint8

// Known data record types.
const (
	// DataTypeStatus carries the operating status at index 0.
	DataTypeStatus DataType = 0x01

	// DataTypePT carries the smoke concentration at index 0.
	DataTypePT DataType = 0x02

	// DataTypeY1 carries the smoke sensor auxiliary reading at index 0.
	DataTypeY1 DataType = 0x06

	// DataTypeWarning carries one active warning code per reading.
	DataTypeWarning DataType = 0x07
)

// DataRecord is one typed group of readings inside a frame.
type DataRecord struct {
	Type     DataType
	Readings []int
}

// Reading returns the reading at index i and whether it is present.
func (r DataRecord) Reading(i int) (int, bool) {
	if i < 0 || i >= len(r.Readings) {
		return 0, false
	}
	return r.Readings[i], true
}

// Message is a decoded frame. It is not modified after Parse returns.
type Message struct {
	// DeviceID is the physical unit identifier (e.g. the DTU serial).
	DeviceID string

	// DeviceMessageID is the per-device key used for change detection.
	DeviceMessageID string

	DeviceType DeviceType

	// CapturedAt is the device-side capture time. Zero when the frame
	// carried no timestamp.
	CapturedAt time.Time

	Records []DataRecord
}
