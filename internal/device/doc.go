// Package device turns decoded frames into typed device snapshots and
// persists them.
//
// # Key Types
//
//   - Snapshot: One observation of a device, with the redundancy fields
//     (status, duplicate counter, supersede time) shared by every model
//   - Payload: The model-specific part of a snapshot (SmokeSensor,
//     ScreenMonitor), built from data records through Apply
//   - Registry: Maps frame device types to payload factories
//   - SnapshotStore: Persistence of snapshots; SQLiteSnapshotStore is the
//     production implementation
//
// # Fingerprints
//
// A payload's Fingerprint is the canonical form of its active warning
// codes: de-duplicated, sorted ascending, joined with ",". A device with no
// warnings has the fingerprint "". Raw readings (pt, y1, status) never
// contribute, so only warning transitions count as changes.
//
// # Usage
//
//	registry := device.NewRegistry()
//	snap, err := registry.Decode(msg)
//	if errors.Is(err, device.ErrUnsupportedDeviceType) {
//	    return err
//	}
//
//	store := device.NewSQLiteSnapshotStore(db.DB)
//	rowID, err := store.Save(ctx, snap)
package device
