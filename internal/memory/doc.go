// Package memory implements the tri-store coordinator: every document
// lives as one point in the vector index, one node in the graph index,
// and a handful of cache entries, all under the same ID.
//
// The coordinator never lets a single backend failure abort an
// operation. Per-store errors are accumulated into the result status
// (full, partial, failed) and the consolidation engine reconciles any
// divergence on its next run.
package memory
