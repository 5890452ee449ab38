package state

import (
	"time"

	"jellysync/internal/manifest"
)

// State is the completion state of a local file record.
type State string

const (
	StatePending  State = "pending"
	StatePartial  State = "partial"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Record is the persisted local view of one manifest file.
type Record struct {
	ItemHashID string
	Key        string
	Role       manifest.Role
	// Path is relative to the media directory.
	Path string
	// Size is the expected size while a transfer is running and the verified
	// size once complete. -1 when unknown.
	Size         int64
	BytesWritten int64
	Checksum     string
	// PrefixState is the serialized digest state over the first BytesWritten
	// bytes of the staging file.
	PrefixState []byte
	Version     string
	State       State
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// OnDisk and Staged are filled by Snapshot: the size of the final file
	// and of the staging file, -1 when absent.
	OnDisk int64
	Staged int64
}

// Snapshot is every record of one item, keyed by file key.
type Snapshot map[string]Record

// Resumable reports whether the record carries a prefix that a ranged fetch
// can extend.
func (r Record) Resumable() bool {
	return r.State == StatePartial && r.BytesWritten > 0 && len(r.PrefixState) > 0
}
