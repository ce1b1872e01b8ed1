// Package frame decodes DTU telemetry frames into Messages.
//
// A frame carries one device observation: the envelope (device type,
// device identifier, device message identifier, capture time) followed by
// a list of data records. Each record has a type code and a list of
// signed 16-bit readings addressed by fixed index.
//
// Wire format (big-endian):
//
//	0x68 | version | device type (2) | len + device id | len + message id |
//	captured-at (4, unix seconds, 0 = unknown) | record count |
//	records (type, reading count, readings...) | checksum
//
// The checksum is the sum of every preceding byte modulo 256.
//
// On stream transports each frame is preceded by a uint16 length; see
// ReadFrame and WriteFrame. Parse is pure and safe for concurrent use.
package frame
