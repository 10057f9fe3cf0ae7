// Package hda provides the shared historical data access types used by the
// session layer, the correlation registry, the browse cursor and the
// in-process server.
//
// This package contains type definitions and small helpers only. Every other
// internal package may import hda; hda imports nothing internal. This keeps it
// the foundational layer with no circular dependencies.
//
// Key conventions:
//   - Item identifiers are NFC-normalized before they are stored or compared
//   - Timestamps are time.Time values in UTC
//   - Server handles are assigned by the remote endpoint and are only
//     meaningful within the request that received them
package hda
