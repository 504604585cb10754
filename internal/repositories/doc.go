// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [IdentityRepository] : account persistence with username-based lookups
//   - [PlaylistRepository] : playlist and playlist track persistence, anonymous or owned
//   - [FailedTrackRepository] : the durable ledger of acquisitions awaiting recovery
//
// Asset blobs never live here; the asset store is the source of truth for
// cached audio. The database only holds what object storage cannot express:
// accounts, playlist membership and the failure ledger.
package repositories
