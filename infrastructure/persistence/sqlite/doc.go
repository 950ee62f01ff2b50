// Package sqlite provides a single-file implementation of the persistence ports.
//
// It uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. Entities, links and the moderation queue share one database:
//
//   - entities: one row per addressable entity, kind-specific fields as JSON
//   - links: one row per link, indexed on both endpoints
//   - pending_actions: the moderation queue
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory.
//
// # Matching
//
// SQLite folds case for ASCII only, so names are also stored lowercased
// and GetLike on the name compares against that column.
package sqlite
