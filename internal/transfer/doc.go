// Package transfer streams planned files from the server into the media
// directory.
//
// Bytes land in the state index's staging file first. Progress is
// checkpointed (fsync, then index update) every CheckpointBytes together with
// the serialized xxhash state of the prefix, so an interrupted transfer can
// resume with a Range request after re-hashing the staged bytes. Completed
// files are verified, moved into place, and only then committed.
package transfer
