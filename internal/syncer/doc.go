// Package syncer drives one sync invocation: resolve the input, expand
// containers into leaf items, build each item's manifest, diff it against the
// local state index, and run the resulting transfers on a bounded worker
// pool.
//
// Transient failures (remote unavailable, interrupted transfers) are retried
// with capped exponential backoff. A checksum mismatch earns exactly one
// refetch against a fresh manifest. Per-file failures never stop sibling
// files; the item and invocation statuses summarise them.
package syncer
