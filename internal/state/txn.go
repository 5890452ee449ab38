package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"jellysync/internal/manifest"
	"jellysync/internal/services"
)

// ErrTxnFinished is returned when a committed or aborted transaction is reused.
var ErrTxnFinished = errors.New("state transaction already finished")

// Txn is the exclusive write handle for one file key. Exactly one of Commit
// or Abort ends it; Abort after Commit is a no-op so it can be deferred.
type Txn struct {
	idx     *Index
	fd      manifest.FileDescriptor
	staging string
	release func()

	mu     sync.Mutex
	offset int64
	prefix []byte
	done   bool
	// persisted is false until the file has a row. New files get one on
	// their first durable write.
	persisted bool
}

const upsertPartial = `INSERT INTO files (
    item_hash, file_key, role, path, size, bytes_written, checksum, prefix_state,
    version, state, attempts, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, 1, NULL, ?, ?)
ON CONFLICT(item_hash, file_key) DO UPDATE SET
    role = excluded.role,
    path = excluded.path,
    size = excluded.size,
    bytes_written = excluded.bytes_written,
    checksum = NULL,
    prefix_state = excluded.prefix_state,
    version = excluded.version,
    state = excluded.state,
    attempts = files.attempts + 1,
    last_error = NULL,
    updated_at = excluded.updated_at`

// Begin takes the per-key lock for fd (blocking until it is free or ctx is
// done) and marks an existing record partial. A partial record of the same
// version and size whose staged bytes are still present keeps its progress;
// anything else starts over from byte zero with an empty staging file. A file
// without a record gets one on its first checkpoint, commit or verification
// failure. Begin refuses a path another item's record already claims.
func (i *Index) Begin(ctx context.Context, fd manifest.FileDescriptor) (*Txn, error) {
	ctx = ensureContext(ctx)
	if fd.ItemHashID == "" || fd.Key == "" {
		return nil, errors.New("begin: item hash id and file key are required")
	}
	release, err := i.lockKey(ctx, fd.ItemHashID, fd.Key)
	if err != nil {
		return nil, err
	}

	owner, err := i.PathOwner(ctx, fd.RelPath, fd.ItemHashID)
	if err != nil {
		release()
		return nil, err
	}
	if owner != "" {
		release()
		return nil, services.Wrap(services.ErrPathConflict, "state", "begin",
			fmt.Sprintf("%s is already recorded for item %s", fd.RelPath, owner), nil)
	}

	txn := &Txn{
		idx:     i,
		fd:      fd,
		staging: i.StagingPath(fd.ItemHashID, fd.Key),
		release: release,
	}
	existing, err := i.Lookup(ctx, fd.ItemHashID, fd.Key)
	if err != nil {
		release()
		return nil, err
	}

	size := expectedSize(fd)
	if existing != nil &&
		existing.Resumable() &&
		existing.Version == fd.Version &&
		existing.Size == size &&
		fileSize(txn.staging) >= existing.BytesWritten {
		txn.offset = existing.BytesWritten
		txn.prefix = existing.PrefixState
	} else if err := removeFile(txn.staging); err != nil {
		release()
		return nil, fmt.Errorf("reset staging file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(txn.staging), 0o755); err != nil {
		release()
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	if existing != nil {
		if err := txn.persistLocked(ctx, txn.offset, txn.prefix); err != nil {
			release()
			return nil, err
		}
	}
	return txn, nil
}

// persistLocked upserts the partial row for the transaction's file.
func (t *Txn) persistLocked(ctx context.Context, n int64, prefixState []byte) error {
	now := timestamp()
	if err := t.idx.exec(ctx, upsertPartial,
		t.fd.ItemHashID,
		t.fd.Key,
		string(t.fd.Role),
		t.fd.RelPath,
		expectedSize(t.fd),
		n,
		nullableBytes(prefixState),
		nullableString(t.fd.Version),
		StatePartial,
		now,
		now,
	); err != nil {
		return fmt.Errorf("begin %s/%s: %w", t.fd.ItemHashID, t.fd.Key, err)
	}
	t.persisted = true
	return nil
}

// Descriptor returns the file the transaction writes.
func (t *Txn) Descriptor() manifest.FileDescriptor { return t.fd }

// StagingPath returns the staging file of this transaction.
func (t *Txn) StagingPath() string { return t.staging }

// Offset is the durable byte count the transfer may resume from.
func (t *Txn) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Prefix is the serialized digest state covering Offset bytes.
func (t *Txn) Prefix() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.prefix...)
}

// Checkpoint durably records that the first n bytes of the staging file are
// flushed and hash to prefixState. Callers fsync the staging file first.
func (t *Txn) Checkpoint(ctx context.Context, n int64, prefixState []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnFinished
	}
	ctx = context.WithoutCancel(ensureContext(ctx))
	if !t.persisted {
		if err := t.persistLocked(ctx, n, prefixState); err != nil {
			return err
		}
	} else {
		err := t.idx.exec(ctx,
			"UPDATE files SET bytes_written = ?, prefix_state = ?, updated_at = ? WHERE item_hash = ? AND file_key = ?",
			n, nullableBytes(prefixState), timestamp(), t.fd.ItemHashID, t.fd.Key,
		)
		if err != nil {
			return fmt.Errorf("checkpoint %s/%s: %w", t.fd.ItemHashID, t.fd.Key, err)
		}
	}
	t.offset = n
	t.prefix = append([]byte(nil), prefixState...)
	return nil
}

// Restart discards the staged prefix and resets progress to zero.
func (t *Txn) Restart(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnFinished
	}
	if err := removeFile(t.staging); err != nil {
		return fmt.Errorf("remove staging file: %w", err)
	}
	err := t.idx.exec(ensureContext(ctx),
		"UPDATE files SET bytes_written = 0, prefix_state = NULL, updated_at = ? WHERE item_hash = ? AND file_key = ?",
		timestamp(), t.fd.ItemHashID, t.fd.Key,
	)
	if err != nil {
		return fmt.Errorf("restart %s/%s: %w", t.fd.ItemHashID, t.fd.Key, err)
	}
	t.offset = 0
	t.prefix = nil
	return nil
}

// Commit marks the record complete. It must only be called once the verified
// file is in its final location.
func (t *Txn) Commit(ctx context.Context, checksum string, size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnFinished
	}
	defer t.finishLocked()
	ctx = context.WithoutCancel(ensureContext(ctx))
	if !t.persisted {
		if err := t.persistLocked(ctx, 0, nil); err != nil {
			return err
		}
	}
	err := t.idx.exec(ctx,
		`UPDATE files SET state = ?, size = ?, bytes_written = ?, checksum = ?, prefix_state = NULL,
            version = ?, last_error = NULL, updated_at = ?
        WHERE item_hash = ? AND file_key = ?`,
		StateComplete, size, size, nullableString(checksum), nullableString(t.fd.Version), timestamp(),
		t.fd.ItemHashID, t.fd.Key,
	)
	if err != nil {
		return fmt.Errorf("commit %s/%s: %w", t.fd.ItemHashID, t.fd.Key, err)
	}
	return nil
}

// Abort ends the transaction without completing the file. A file that never
// reached a checkpoint is left without a record. Otherwise the record keeps
// its last checkpoint and stays partial, except after a checksum mismatch
// where the staged bytes are worthless: the record is marked failed and the
// staging file removed.
func (t *Txn) Abort(ctx context.Context, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	defer t.finishLocked()

	message := "aborted"
	if cause != nil {
		message = cause.Error()
	}
	ctx = context.WithoutCancel(ensureContext(ctx))
	if errors.Is(cause, services.ErrChecksumMismatch) {
		if err := removeFile(t.staging); err != nil {
			return fmt.Errorf("remove staging file: %w", err)
		}
		if !t.persisted {
			if err := t.persistLocked(ctx, 0, nil); err != nil {
				return err
			}
		}
		return t.idx.exec(ctx,
			"UPDATE files SET state = ?, bytes_written = 0, prefix_state = NULL, last_error = ?, updated_at = ? WHERE item_hash = ? AND file_key = ?",
			StateFailed, message, timestamp(), t.fd.ItemHashID, t.fd.Key,
		)
	}
	if !t.persisted {
		return nil
	}
	return t.idx.exec(ctx,
		"UPDATE files SET state = ?, last_error = ?, updated_at = ? WHERE item_hash = ? AND file_key = ?",
		StatePartial, message, timestamp(), t.fd.ItemHashID, t.fd.Key,
	)
}

func (t *Txn) finishLocked() {
	t.done = true
	t.release()
}

func expectedSize(fd manifest.FileDescriptor) int64 {
	if fd.SizeKnown() {
		return fd.Size
	}
	return -1
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
