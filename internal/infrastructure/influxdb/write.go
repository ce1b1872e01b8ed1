package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ReadingsMeasurement is the measurement device readings are written to.
const ReadingsMeasurement = "dtu_readings"

// WriteReadings writes the numeric readings of one decoded snapshot as a
// single point. It implements the ingest readings sink.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Snapshots without readings write nothing.
//
// Parameters:
//   - deviceID: Gateway device identifier (tag)
//   - deviceMessageID: Device identity used for change detection (tag)
//   - model: Device model name, e.g. "smoke_sensor" (tag)
//   - readings: Field name to value, e.g. {"pt": 12, "y1": 3}
//   - at: Capture time of the snapshot
func (c *Client) WriteReadings(deviceID, deviceMessageID, model string, readings map[string]float64, at time.Time) {
	if !c.IsConnected() || len(readings) == 0 {
		return
	}
	c.writeAPI.WritePoint(readingsPoint(deviceID, deviceMessageID, model, readings, at))
}

func readingsPoint(deviceID, deviceMessageID, model string, readings map[string]float64, at time.Time) *write.Point {
	fields := make(map[string]interface{}, len(readings))
	for name, v := range readings {
		fields[name] = v
	}

	return write.NewPoint(
		ReadingsMeasurement,
		map[string]string{
			"device_id":         deviceID,
			"device_message_id": deviceMessageID,
			"model":             model,
		},
		fields,
		at,
	)
}
