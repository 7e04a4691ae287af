package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"invitely/pkg/api"
	"invitely/pkg/config"
	"invitely/pkg/editor"
	"invitely/pkg/handlers"
	"invitely/pkg/media"
	"invitely/pkg/responsive"
	"invitely/pkg/share"
	"invitely/pkg/storage"
)

// App struct
type App struct {
	config  *config.Config
	log     *log.Logger
	kv      storage.KV
	client  *api.Client
	editor  *editor.Editor
	surface *responsive.ReportedSurface
	hub     *handlers.Hub
	server  *http.Server
}

func subLogger(base *log.Logger, name string) *log.Logger {
	return log.New(base.Writer(), base.Prefix()+"["+name+"] ", base.Flags())
}

// NewApp loads configuration and wires every component. openURL is the
// share link the editor was opened with, if any.
func NewApp(ctx context.Context, openURL string) (*App, error) {
	base := log.New(os.Stdout, "[invitely] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		base.Printf("Failed to load configuration, using defaults: %v", err)
		cfg = config.Default()
	}
	base.Printf("\n  configuration: %s-------------------", cfg)

	a := &App{config: cfg, log: base}

	base.Printf("init %s storage", cfg.StorageBackend)
	a.kv, err = openKV(ctx, cfg, subLogger(base, cfg.StorageBackend))
	if err != nil {
		return nil, fmt.Errorf("failed init storage: %w", err)
	}

	opts := editor.Options{
		KV:            a.kv,
		StorageKey:    cfg.StorageKey,
		ViewerBaseURL: cfg.ViewerBaseURL,
		StartURL:      openURL,
		Logger:        base,
	}

	if cfg.APIBaseURL != "" {
		tokens := api.NewKVTokens(a.kv, subLogger(base, "tokens"))
		a.client = api.NewClient(cfg.APIBaseURL, tokens, nil, subLogger(base, "api"))
		opts.Remote = a.client
		base.Printf("remote service: %s", cfg.APIBaseURL)
	}

	if cfg.ObjectStoreEnabled() {
		base.Println("init S3 storage")
		objects, err := media.NewObjectStore(media.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: true,
			PublicURL: cfg.S3PublicURL,
		}, subLogger(base, "s3"))
		if err == nil {
			err = objects.EnsureBucket(ctx)
		}
		if err != nil {
			base.Printf("S3 storage unavailable, images stay inline: %v", err)
		} else {
			opts.Images = objects
		}
	}

	opts.Providers = []share.Provider{share.ClipboardProvider{}}
	if cfg.ShareCommand != "" {
		opts.Providers = append([]share.Provider{&share.CommandProvider{Command: cfg.ShareCommand}}, opts.Providers...)
	}

	a.surface = responsive.NewReportedSurface(0, 0)
	opts.Surface = a.surface

	a.editor, err = editor.New(opts)
	if err != nil {
		a.kv.Close()
		return nil, fmt.Errorf("failed init editor: %w", err)
	}

	a.hub = handlers.NewHub(a.editor, subLogger(base, "ws"))

	deps := handlers.RouterDeps{
		Editor:    a.editor,
		Surface:   a.surface,
		Hub:       a.hub,
		BackupDir: filepath.Join(cfg.DataPath, "backups"),
	}
	if a.client != nil {
		deps.Account = a.client
		deps.Health = a.client.Health
	}
	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	base.Println("build ended")
	return a, nil
}

func openKV(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.KV, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemoryKV(cfg.StorageQuotaBytes), nil
	case config.BackendSQLite:
		return storage.NewSQLiteKV(filepath.Join(cfg.DataPath, "invitely.db"), cfg.StorageQuotaBytes)
	case config.BackendRedis:
		rkv := storage.NewRedisKV(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
			Prefix:   "invitely:",
		}, logger)
		if err := rkv.Ping(ctx); err != nil {
			rkv.Close()
			return nil, err
		}
		return rkv, nil
	default:
		return storage.NewFileKV(cfg.DataPath, cfg.StorageQuotaBytes, logger)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts everything down
func (a *App) Run(ctx context.Context) error {
	a.log.Printf("start application on http://%s", a.config.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	a.log.Println("stop application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(stopCtx); err != nil {
		a.log.Printf("shutdown: %v", err)
	}
	a.Close()
	return runErr
}

// Close releases the editor and storage
func (a *App) Close() {
	a.hub.Close()
	a.editor.Close()
	if err := a.kv.Close(); err != nil {
		a.log.Printf("close storage: %v", err)
	}
}
