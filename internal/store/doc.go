// Package store provides SQLite-backed storage for the clinic's record collections.
//
// Every collection declared in the catalog is a table of JSON documents keyed
// by the collection's key field:
//
//	CREATE TABLE patients (key TEXT PRIMARY KEY, doc TEXT NOT NULL)
//
// Secondary lookups are expression indexes over json_extract(doc, '$.field').
//
// # Guarantees
//
//   - Put is an upsert: a record replaces any record with the same key.
//   - Each operation runs in its own transaction. Concurrent operations on one
//     collection resolve in commit order; no application-level locking is added.
//   - References between collections (appointment.patientId and so on) are
//     never enforced or cascaded. Deleting a patient leaves history intact.
//   - Reads return records ordered by key and never return nil slices.
//
// # Schema versions
//
// The schema version is stored in PRAGMA user_version. EnsureSchema creates a
// fresh database at the catalog version or adds whatever collections and
// indexes appeared since the stored version. Existing rows are never touched.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=OFF: references are soft
package store
