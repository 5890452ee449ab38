package testsupport

import (
	"testing"

	"jellysync/internal/config"
	"jellysync/internal/state"
)

// MustOpenIndex opens the state index for cfg and closes it when the test ends.
func MustOpenIndex(t testing.TB, cfg *config.Config) *state.Index {
	t.Helper()

	idx, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open state index: %v", err)
	}
	t.Cleanup(func() {
		_ = idx.Close()
	})
	return idx
}
