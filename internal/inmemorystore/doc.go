// Package inmemorystore provides an ephemeral, thread-safe, in-memory byte
// store partitioned by computation cycle.
//
// # Purpose
//
// The store is the local tier of the view computation cache and the backing
// store of the remote cache server. Values are opaque encoded bytes keyed by
// a cache key string within a cycle namespace.
//
// # Concurrency Model
//
// Each cycle owns a sync.Map. Calculation nodes write many independent keys
// concurrently while dependent jobs read them, and the key space of a cycle
// is written once and read many times, which is the access pattern sync.Map
// is built for. Purging a cycle drops its map in one step.
package inmemorystore
