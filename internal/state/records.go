package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jellysync/internal/manifest"
)

const recordColumns = "item_hash, file_key, role, path, size, bytes_written, checksum, prefix_state, version, state, attempts, last_error, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		itemHash     string
		key          string
		role         string
		path         string
		size         int64
		bytesWritten int64
		checksum     sql.NullString
		prefix       []byte
		version      sql.NullString
		stateStr     string
		attempts     int
		lastError    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&itemHash,
		&key,
		&role,
		&path,
		&size,
		&bytesWritten,
		&checksum,
		&prefix,
		&version,
		&stateStr,
		&attempts,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ItemHashID:   itemHash,
		Key:          key,
		Role:         manifest.Role(role),
		Path:         path,
		Size:         size,
		BytesWritten: bytesWritten,
		Checksum:     checksum.String,
		PrefixState:  prefix,
		Version:      version.String,
		State:        State(stateStr),
		Attempts:     attempts,
		LastError:    lastError.String,
		OnDisk:       -1,
		Staged:       -1,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

// Lookup returns the record for one file, or nil when none exists.
func (i *Index) Lookup(ctx context.Context, itemHashID, key string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := i.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM files WHERE item_hash = ? AND file_key = ?",
		itemHashID, key,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", itemHashID, key, err)
	}
	return rec, nil
}

// Snapshot returns every record of the item with the on-disk size of its
// final file under root and of its staging file.
func (i *Index) Snapshot(ctx context.Context, itemHashID, root string) (Snapshot, error) {
	records, err := i.query(ctx,
		"SELECT "+recordColumns+" FROM files WHERE item_hash = ? ORDER BY file_key",
		itemHashID,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", itemHashID, err)
	}
	snap := make(Snapshot, len(records))
	for _, rec := range records {
		if rec.Path != "" && root != "" {
			rec.OnDisk = fileSize(filepath.Join(root, filepath.FromSlash(rec.Path)))
		}
		rec.Staged = fileSize(i.StagingPath(rec.ItemHashID, rec.Key))
		snap[rec.Key] = *rec
	}
	return snap, nil
}

// PathOwner returns the item, other than itemHashID, whose record claims
// relPath, or "" when no other item has written there.
func (i *Index) PathOwner(ctx context.Context, relPath, itemHashID string) (string, error) {
	var owner string
	err := i.db.QueryRowContext(ensureContext(ctx),
		"SELECT item_hash FROM files WHERE path = ? AND item_hash != ? ORDER BY created_at LIMIT 1",
		relPath, itemHashID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("path owner %s: %w", relPath, err)
	}
	return owner, nil
}

// List returns all records ordered by item and key.
func (i *Index) List(ctx context.Context) ([]Record, error) {
	records, err := i.query(ctx, "SELECT "+recordColumns+" FROM files ORDER BY item_hash, file_key")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	return out, nil
}

// ListItem returns the records of one item ordered by key.
func (i *Index) ListItem(ctx context.Context, itemHashID string) ([]Record, error) {
	records, err := i.query(ctx,
		"SELECT "+recordColumns+" FROM files WHERE item_hash = ? ORDER BY file_key",
		itemHashID,
	)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", itemHashID, err)
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	return out, nil
}

func (i *Index) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	ctx = ensureContext(ctx)
	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	return info.Size()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableBytes(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
