package assistant

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/logger"
	"zonewatch/internal/models"
)

func TestOrphanSweeperRemovesOnlyOldUnreferencedFiles(t *testing.T) {
	ctx := context.Background()
	docs, _, _ := newFileDocs(t)
	sessions := NewSessionStore(ctx, docs, logger.NewNop())
	assets, err := NewAssetStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	kept, err := assets.Save(&models.Upload{Filename: "kept.png", Data: pngBytes})
	require.NoError(t, err)
	user := models.Turn{Role: models.RoleUser, Parts: []models.Part{models.ImagePart(kept)}}
	_, err = sessions.UpsertAfterExchange(ctx, "s1", user, modelTurn("ok"), "kept.png")
	require.NoError(t, err)

	orphan, err := assets.Save(&models.Upload{Filename: "orphan.png", Data: pngBytes})
	require.NoError(t, err)
	fresh, err := assets.Save(&models.Upload{Filename: "fresh.png", Data: pngBytes})
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	for _, ref := range []string{kept, orphan} {
		require.NoError(t, os.Chtimes(filepath.Join(assets.Dir(), path.Base(ref)), old, old))
	}

	removedCount := 0
	sweeper := NewOrphanSweeper(assets, sessions, 24*time.Hour, logger.NewNop())
	sweeper.OnRemove(func() { removedCount++ })

	removed, err := sweeper.Sweep(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, removedCount)

	assert.FileExists(t, filepath.Join(assets.Dir(), path.Base(kept)))
	assert.FileExists(t, filepath.Join(assets.Dir(), path.Base(fresh)))
	assert.NoFileExists(t, filepath.Join(assets.Dir(), path.Base(orphan)))
}

func TestAssetStoreSaveAndRemove(t *testing.T) {
	assets, err := NewAssetStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	a, err := assets.Save(&models.Upload{Filename: "x.JPG", Data: []byte("data")})
	require.NoError(t, err)
	b, err := assets.Save(&models.Upload{Filename: "x.JPG", Data: []byte("data")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, ".jpg", path.Ext(a))
	assert.True(t, models.IsAssetRef(a), a)

	odd, err := assets.Save(&models.Upload{Filename: "report. final", Data: []byte("data")})
	require.NoError(t, err)
	assert.True(t, models.IsAssetRef(odd), odd)
	assert.Equal(t, "", path.Ext(odd))

	require.NoError(t, assets.Remove(a))
	assert.NoFileExists(t, filepath.Join(assets.Dir(), path.Base(a)))
	require.NoError(t, assets.Remove(a))
}
