// Package ingest turns raw frames into stored device snapshots.
//
// A Processor runs each frame through four steps:
//
//	frame.Parse ─▶ device.Registry.Decode ─▶ changedetect.Detector.Evaluate ─▶ Executor.Apply
//
// Evaluate and Apply for one DeviceMessageID run under a per-key lock, so
// concurrent frames for the same device are decided one at a time and the
// device never has more than one current row. Frames for different devices
// do not wait on each other.
//
// The Executor coalesces repeats: a changed or first-seen snapshot
// supersedes the current row, is saved as the new current row and is then
// committed to the fingerprint cache. An unchanged snapshot only stamps the
// current row as re-observed.
//
// Every failure is local to its frame. Nothing here retries; a dropped
// frame is logged with its device_message_id and stage, and counted.
//
// # Cache failure
//
// A cache miss is always FirstSeen. When the cache itself is unavailable
// and Config.StoreFallback is set, the verdict is taken from the store's
// current row instead, which keeps repeats coalesced during a Redis outage.
package ingest
