package assistant

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"zonewatch/internal/logger"
)

const (
	DefaultAssetGracePeriod   = 24 * time.Hour
	DefaultAssetSweepInterval = time.Hour
)

// OrphanSweeper removes uploads that no session references any more.
type OrphanSweeper struct {
	assets   *AssetStore
	sessions *SessionStore
	grace    time.Duration
	log      logger.Logger
	onRemove func()
}

func NewOrphanSweeper(assets *AssetStore, sessions *SessionStore, grace time.Duration, log logger.Logger) *OrphanSweeper {
	if grace <= 0 {
		grace = DefaultAssetGracePeriod
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &OrphanSweeper{assets: assets, sessions: sessions, grace: grace, log: log}
}

// OnRemove registers a callback run once per deleted file.
func (o *OrphanSweeper) OnRemove(fn func()) {
	o.onRemove = fn
}

// Start sweeps every interval until ctx is done.
func (o *OrphanSweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAssetSweepInterval
	}
	go o.loop(ctx, interval)
}

func (o *OrphanSweeper) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := o.Sweep(now); err != nil {
				o.log.Warn("sweeper", "sweep uploads failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Sweep deletes unreferenced files older than the grace period and returns how many went.
func (o *OrphanSweeper) Sweep(now time.Time) (int, error) {
	files, err := o.assets.list()
	if err != nil {
		return 0, err
	}
	refs := o.sessions.ReferencedAssets()

	removed := 0
	for _, f := range files {
		if _, ok := refs[f.name]; ok {
			continue
		}
		if now.Sub(f.modTime) < o.grace {
			continue
		}
		if err := os.Remove(filepath.Join(o.assets.Dir(), f.name)); err != nil && !os.IsNotExist(err) {
			o.log.Warn("sweeper", "remove orphan upload failed", map[string]any{"file": f.name, "error": err.Error()})
			continue
		}
		removed++
		if o.onRemove != nil {
			o.onRemove()
		}
	}
	if removed > 0 {
		o.log.Info("sweeper", "removed orphan uploads", map[string]any{"count": removed})
	}
	return removed, nil
}
