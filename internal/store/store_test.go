package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestReopenKeepsTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('documents', 'revisions')`,
	).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestOpenRejectsNewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)

	_, err = Open(filepath.Join(dir, "a.db"), WithSynchronous("sometimes"))
	assert.ErrorContains(t, err, `invalid synchronous mode "SOMETIMES"`)

	_, err = Open(filepath.Join(dir, "b.db"), WithBusyTimeout(-time.Second))
	assert.ErrorContains(t, err, "negative busy timeout")
}

func TestCloseNilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want map[string]string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"journal_mode": "wal",
				"synchronous":  "1",
				"busy_timeout": "5000",
				"foreign_keys": "1",
				"user_version": "1",
			},
		},
		{
			name: "options",
			opts: []Option{WithSynchronous("full"), WithBusyTimeout(250 * time.Millisecond)},
			want: map[string]string{
				"synchronous":  "2",
				"busy_timeout": "250",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t, tt.opts...)
			for pragma, value := range tt.want {
				assert.NoError(t, s.verifyPragma(pragma, value))
			}
		})
	}
}

func TestLastSeqEmptyStore(t *testing.T) {
	s := setupTestStore(t)

	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)
}
