package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		location string
		want     string
		s3       bool
		wantErr  bool
	}{
		{location: "/var/lib/maintenance.json", want: "/var/lib/maintenance.json"},
		{location: "relative/ledger.json", want: "relative/ledger.json"},
		{location: "file:///tmp/ledger.json", want: "/tmp/ledger.json"},
		{location: "s3://ops-bucket/jenkins/ledger.json", want: "s3://ops-bucket/jenkins/ledger.json", s3: true},
		{location: "s3://ops-bucket", wantErr: true},
		{location: "s3:///key.json", wantErr: true},
		{location: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			s, err := OpenStore(tt.location, S3Settings{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Location())
			if tt.s3 {
				assert.IsType(t, &S3Store{}, s)
			} else {
				assert.IsType(t, &FileStore{}, s)
			}
		})
	}
}

func TestFileStore_AbsentLedgerReadsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotExist)

	l, found, err := Read(context.Background(), s, VariantPrepare)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, l.Empty())
}

func TestFileStore_TouchCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"DisabledNodes":["stale"]}`), 0o644))

	require.NoError(t, s.Touch(ctx))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	_, _, err = Read(ctx, s, VariantPrepare)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestFileStore_WriteReadDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "ledger.json")
	s := NewFileStore(path)
	ctx := context.Background()

	l := New(VariantKill)
	l.Record(Workflows, "https://ci/job/app/")
	l.Record(Nodes, "agent-1")
	require.NoError(t, Write(ctx, s, l))

	got, found, err := Read(ctx, s, VariantKill)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, got.Has(Workflows, "https://ci/job/app/"))
	assert.True(t, got.Has(Nodes, "agent-1"))

	// No temp files are left next to the ledger.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(ctx))
}

func TestRead_MalformedLedgerIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, found, err := Read(context.Background(), NewFileStore(path), VariantPrepare)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyFile)
	assert.True(t, found)
}
