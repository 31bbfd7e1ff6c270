package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"zonewatch/internal/api"
	"zonewatch/internal/auth"
	"zonewatch/internal/config"
	"zonewatch/internal/logger"
	"zonewatch/internal/observability"
	"zonewatch/internal/redis"
	"zonewatch/internal/service/ai"
	"zonewatch/internal/service/assistant"
	"zonewatch/internal/storage"
	"zonewatch/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// openDocuments returns the configured document backend and, for SQL
// drivers, the database handle the caller must close.
func openDocuments(cfg *config.Config) (storage.Documents, *sql.DB, error) {
	if cfg.Storage.Driver == "file" {
		return storage.NewFileDocuments(map[string]string{
			storage.DocumentPersonality: cfg.BasicConfig.PersonalityFile,
			storage.DocumentSessions:    cfg.BasicConfig.SessionsFile,
		}), nil, nil
	}
	db, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, cfg.Storage.Driver); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return storage.NewSQLDocuments(db, cfg.Storage.Driver), db, nil
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logger.New(cfg.Log.FilePath, cfg.Log.Production)
	defer log.Sync()
	worker.SetLogger(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, db, err := openDocuments(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	log.Info("main", "storage ready", map[string]any{"driver": cfg.Storage.Driver})

	metrics := observability.NewMetrics(cfg.BasicConfig.MetricsNamespace)
	observeWrite := func(document string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.StoreWrites.WithLabelValues(document, result).Inc()
	}

	personality := assistant.NewPersonalityStore(ctx, docs, log)
	sessions := assistant.NewSessionStore(ctx, docs, log)
	personality.SetWriteObserver(observeWrite)
	sessions.SetWriteObserver(observeWrite)

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		feed := redis.NewFeed(client, cfg.BasicConfig.MetricsNamespace, log)
		personality.SetNotifier(feed)
		sessions.SetNotifier(feed)
		if _, err := feed.Listen(ctx, func(change redis.Change) {
			switch change.Scope {
			case redis.ScopePersonality:
				personality.Reload(ctx)
			case redis.ScopeSessions:
				sessions.Reload(ctx)
			}
		}); err != nil {
			return fmt.Errorf("listen for changes: %w", err)
		}
		log.Info("main", "change feed started", map[string]any{"origin": feed.Origin()})
	}

	assets, err := assistant.NewAssetStore(cfg.BasicConfig.UploadsDir)
	if err != nil {
		return fmt.Errorf("init uploads dir: %w", err)
	}

	generator, err := ai.NewGenerator(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("init model client: %w", err)
	}

	dispatcher := worker.NewDispatcher(
		cfg.Worker.MinWorkers,
		cfg.Worker.MaxWorkers,
		cfg.Worker.QueueSize,
		time.Duration(cfg.Worker.IdleTimeout)*time.Second,
	)
	defer dispatcher.Close()

	ns := cfg.BasicConfig.MetricsNamespace
	metrics.GaugeFunc(ns, "sessions", "Stored chat sessions.", func() float64 {
		return float64(sessions.Count())
	})
	metrics.GaugeFunc(ns, "dispatcher_pending_jobs", "Model calls waiting for a worker.", func() float64 {
		pending, _ := dispatcher.Stats()
		return float64(pending)
	})
	metrics.GaugeFunc(ns, "dispatcher_workers", "Live dispatcher workers.", func() float64 {
		_, workers := dispatcher.Stats()
		return float64(workers)
	})

	if interval := time.Duration(cfg.BasicConfig.AssetSweepInterval) * time.Minute; interval > 0 {
		grace := time.Duration(cfg.BasicConfig.AssetGracePeriod) * time.Minute
		sweeper := assistant.NewOrphanSweeper(assets, sessions, grace, log)
		sweeper.OnRemove(metrics.AssetsSwept.Inc)
		sweeper.Start(ctx, interval)
	}

	chat := assistant.NewChatService(assistant.ChatDeps{
		Personality: personality,
		Sessions:    sessions,
		Assets:      assets,
		Generator:   generator,
		Dispatcher:  dispatcher,
		Timeout:     cfg.RequestTimeout(),
		Metrics:     metrics,
		Logger:      log,
	})
	handler := api.NewHandler(api.Deps{
		Personality: personality,
		Sessions:    sessions,
		Chat:        chat,
		Assets:      assets,
		Auth:        auth.NewService(cfg.BasicConfig.AccessToken),
		Metrics:     metrics,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("main", "server listening", map[string]any{
			"addr":     srv.Addr,
			"provider": cfg.Provider.Name,
			"model":    cfg.Provider.Model,
			"sessions": sessions.Count(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("main", "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runSessions(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	docs, db, err := openDocuments(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	sessions := assistant.NewSessionStore(cmd.Context(), docs, logger.NewNop())
	out := cmd.OutOrStdout()
	for _, s := range sessions.List() {
		marker := " "
		if s.Pinned {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\t%d\t%s\n", marker, s.ID, len(s.History), s.Title)
	}
	return nil
}
