// Package storage defines the injected cache-storage port used by the worker:
// named version buckets holding request→response snapshots. Two drivers are
// provided, a disk store laid out as StoragePath/<bucket>/<digest>.snap.json
// with temp-file + rename write semantics, and a memory store used by tests
// and throwaway deployments. Buckets guarantee per-key atomicity only; the
// worker layers no extra locking on top.
package storage
