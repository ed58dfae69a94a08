// Package cachestore persists stage results keyed by fingerprint.
//
// The store owns the cache record file inside the output directory: an
// append-mostly JSONL manifest that is the single source of truth for which
// stage results exist. Small results are stored inline; large artifacts are
// stored as files next to the manifest and referenced by path plus content
// hash. Lookups verify file-backed artifacts against the recorded hash and
// demote missing or tampered artifacts to cache misses. Writes go through a
// single-writer discipline (an in-process mutex plus a cross-process flock)
// and only commit a record after the artifact is fully written and verified,
// so an interrupted run never leaves a record pointing at a partial file.
package cachestore
