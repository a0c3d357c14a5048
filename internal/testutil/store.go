package testutil

import (
	"path/filepath"
	"testing"

	"github.com/coral-mesh/pipelinescope/internal/store"
)

// NewTestStore opens a history database in a temporary directory.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.duckdb")
	s, err := store.Open(path, false, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})
	return s, path
}
