// Package store provides SQLite-backed storage for the in-process historian.
//
// The store holds:
//   - Namespace: branches and items, addressed by dotted paths
//   - Samples: one value per (item, timestamp)
//   - Annotations: free-text notes per item and timestamp
//   - Attributes: timestamped attribute values per item
//
// # Conventions
//
// Item ids and branch paths are NFC-normalized on the way in (hda.NormalizeItemID),
// so callers may pass ids in any Unicode composition.
//
// Timestamps are stored as INTEGER unix nanoseconds in UTC and come back as
// UTC time.Time values. Every range query orders by timestamp; descending
// ranges (start after end) return values newest first.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
