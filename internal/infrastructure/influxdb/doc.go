// Package influxdb writes device readings to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. Every
// decoded snapshot's numeric readings become one point in the
// dtu_readings measurement, tagged by device and model, whether or not
// the snapshot was a change.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReadings("GW-1", "D1", "smoke_sensor",
//	    map[string]float64{"pt": 12}, time.Now())
//
// # Error Handling
//
// Batches that fail to write are logged through the Logger passed to
// Connect, wrapped in ErrWriteFailed. Connect and HealthCheck return
// their errors directly. Flush pushes out buffered points on shutdown.
package influxdb
