// Package state persists what jellysync has already written locally.
//
// Every file of every synced item owns one record keyed by (item hash id,
// file key). Records move pending -> partial -> complete (or failed) and are
// only mutated through a Txn obtained from Begin, which also serialises
// writers of the same key inside the process. Bytes are staged under
// <state_dir>/staging and only moved into the media directory after
// verification, so a crash can never leave a record complete without the
// matching file. The store is SQLite (modernc.org/sqlite) in WAL mode with
// busy retries, and an flock guards the state directory across processes.
package state
