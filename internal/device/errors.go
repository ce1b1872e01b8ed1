package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrUnsupportedDeviceType) {
//	    // drop the frame
//	}
var (
	// ErrUnsupportedDeviceType is returned when no decoder is registered
	// for a frame's device type.
	ErrUnsupportedDeviceType = errors.New("device: unsupported device type")

	// ErrSnapshotNotFound is returned when a snapshot row or a current row
	// does not exist.
	ErrSnapshotNotFound = errors.New("device: snapshot not found")

	// ErrInvalidSnapshot is returned when a snapshot is missing required fields.
	ErrInvalidSnapshot = errors.New("device: invalid snapshot")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")
)
