package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/config"
)

func TestFileDocumentsReadMissing(t *testing.T) {
	dir := t.TempDir()
	docs := NewFileDocuments(map[string]string{DocumentSessions: filepath.Join(dir, "chat_sessions.json")})

	_, err := docs.Read(context.Background(), DocumentSessions)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestFileDocumentsWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "chat_sessions.json")
	docs := NewFileDocuments(map[string]string{DocumentSessions: path})
	ctx := context.Background()

	require.NoError(t, docs.Write(ctx, DocumentSessions, []byte(`{"a":1}`)))
	require.NoError(t, docs.Write(ctx, DocumentSessions, []byte(`{"b":2}`)))

	got, err := docs.Read(ctx, DocumentSessions)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileDocumentsWriteIsWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "personality.json")
	docs := NewFileDocuments(map[string]string{DocumentPersonality: path})

	require.NoError(t, docs.Write(context.Background(), DocumentPersonality, []byte(`{"personality":""}`)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileDocumentsUnknownName(t *testing.T) {
	docs := NewFileDocuments(nil)
	_, err := docs.Read(context.Background(), "other")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDocument)
}

func TestSQLDocumentsSQLite(t *testing.T) {
	cfg := config.StorageConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "zonewatch.db")}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db, cfg.Driver))

	docs := NewSQLDocuments(db, cfg.Driver)
	ctx := context.Background()

	_, err = docs.Read(ctx, DocumentPersonality)
	assert.ErrorIs(t, err, ErrNoDocument)

	require.NoError(t, docs.Write(ctx, DocumentPersonality, []byte(`{"personality":"x"}`)))
	require.NoError(t, docs.Write(ctx, DocumentPersonality, []byte(`{"personality":"y"}`)))

	got, err := docs.Read(ctx, DocumentPersonality)
	require.NoError(t, err)
	assert.Equal(t, `{"personality":"y"}`, string(got))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.StorageConfig{Driver: "oracle"})
	require.Error(t, err)
}
