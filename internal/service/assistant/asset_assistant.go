package assistant

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"zonewatch/internal/models"
)

// AssetStore keeps uploaded images under one directory.
type AssetStore struct {
	dir string
}

func NewAssetStore(dir string) (*AssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &AssetStore{dir: dir}, nil
}

func (a *AssetStore) Dir() string {
	return a.dir
}

// Save writes the upload under a fresh uuid name keeping its extension and
// returns the reference path stored in history.
func (a *AssetStore) Save(upload *models.Upload) (string, error) {
	name := models.AssetName(uuid.New(), uploadExt(upload.Filename))
	target := filepath.Join(a.dir, name)
	if err := os.WriteFile(target, upload.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}
	return models.AssetURLPrefix + name, nil
}

// Remove deletes the asset behind a reference path.
func (a *AssetStore) Remove(ref string) error {
	name := path.Base(ref)
	if err := os.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload %s: %w", name, err)
	}
	return nil
}

type assetFile struct {
	name    string
	modTime time.Time
}

func (a *AssetStore) list() ([]assetFile, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	files := make([]assetFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, assetFile{name: e.Name(), modTime: info.ModTime()})
	}
	return files, nil
}

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !models.ValidAssetExt(ext) {
		return ""
	}
	return ext
}
