package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ChecksumPrefix tags checksums produced by this package.
const ChecksumPrefix = "xxh64:"

// FormatChecksum renders a digest sum the way records store it.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%s%016x", ChecksumPrefix, sum)
}

// FileChecksum hashes the file at path.
func FileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	d := xxhash.New()
	n, err := io.Copy(d, f)
	if err != nil {
		return "", 0, err
	}
	return FormatChecksum(d.Sum64()), n, nil
}

var errPrefixMismatch = errors.New("staged prefix does not match recorded digest")

// restorePrefix re-hashes the first n bytes of the staging file and checks
// them against the recorded digest state. On success the returned digest is
// positioned after the prefix.
func restorePrefix(path string, n int64, saved []byte) (*xxhash.Digest, error) {
	recorded := xxhash.New()
	if err := recorded.UnmarshalBinary(saved); err != nil {
		return nil, fmt.Errorf("decode prefix state: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	actual := xxhash.New()
	copied, err := io.Copy(actual, io.LimitReader(f, n))
	if err != nil {
		return nil, err
	}
	if copied != n || actual.Sum64() != recorded.Sum64() {
		return nil, errPrefixMismatch
	}
	return actual, nil
}
