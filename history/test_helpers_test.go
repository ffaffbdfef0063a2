package history

import (
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens a store backed by a throwaway database file.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTime returns a fixed base time offset by n minutes.
func testTime(n int) time.Time {
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(n) * time.Minute)
}
