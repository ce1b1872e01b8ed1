// Package changedetect decides whether a device snapshot is a change.
//
// For every DeviceMessageID the cache remembers the fingerprint and row ID
// of the device's current stored snapshot. Evaluate compares a new
// snapshot's fingerprint with the cached one:
//
//   - no entry, or an entry missing either field: FirstSeen
//   - fingerprints differ (case-insensitive): Changed
//   - fingerprints equal: Unchanged, with the cached row ID to stamp
//
// Commit writes both fields and refreshes the TTL in one transaction, so
// the cached fingerprint always belongs to the cached row.
//
// The cache fails open: a store error is reported as ErrCacheUnavailable
// together with a FirstSeen result, so at worst one redundant row is written.
//
// Two stores are provided. RedisStore keeps a hash per device with the
// fields "warn" and "id". MemoryStore keeps the same data in process and
// is used when Redis is disabled.
package changedetect
