// Package app 按配置组装采集流水线的各个组件，cmd/crawl 与 cmd/api 共用
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/fundus"
	"github.com/LJTian/LingoNews/internal/media"
	"github.com/LJTian/LingoNews/internal/metrics"
	"github.com/LJTian/LingoNews/internal/persistor"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/scheduler"
	"github.com/LJTian/LingoNews/internal/storage"
)

const (
	runLockKey = "lingonews:run"
	reportTTL  = 7 * 24 * time.Hour
)

// App 已组装好的组件
type App struct {
	Config      *config.Config
	Store       *storage.Store
	Fetcher     *fetcher.Fetcher
	Media       *media.Manager
	Registry    *collector.Registry
	Persistor   *persistor.Persistor
	Coordinator *scheduler.Coordinator
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

// Build 连接数据库与 Redis，注册全部来源；reg 为 nil 时使用默认 Prometheus 注册表
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log zerolog.Logger) (*App, error) {
	store, err := storage.Open(ctx, cfg.PostgresDSN, cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}
	a, err := Assemble(ctx, cfg, store, reg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// Assemble 在已打开的 Store 上组装其余组件
func Assemble(ctx context.Context, cfg *config.Config, store *storage.Store, reg prometheus.Registerer, log zerolog.Logger) (*App, error) {
	p := cfg.Pipeline
	m := metrics.New(reg)

	f := fetcher.New(fetcher.Options{
		Timeout:      p.HTTPTimeout,
		ImageTimeout: p.ImageTimeout,
		MaxRetries:   p.MaxRetries,
		RetryDelay:   p.RetryDelay,
		Metrics:      m,
		Logger:       log.With().Str("component", "fetcher").Logger(),
	})

	var mirror media.Mirror
	if cfg.MediaS3Bucket != "" {
		s3m, err := media.NewS3Mirror(ctx, media.S3Options{
			Bucket:          cfg.MediaS3Bucket,
			Endpoint:        cfg.MediaS3Endpoint,
			Region:          cfg.MediaS3Region,
			AccessKeyID:     cfg.MediaS3KeyID,
			SecretAccessKey: cfg.MediaS3Secret,
		})
		if err != nil {
			return nil, err
		}
		mirror = s3m
	}

	mm, err := media.NewManager(media.Options{
		Root:    cfg.MediaRoot,
		Fetcher: f,
		Refs:    store.News,
		Mirror:  mirror,
		Metrics: m,
		Logger:  log.With().Str("component", "media").Logger(),
	})
	if err != nil {
		return nil, err
	}
	store.News.SetHooks(mm)

	proc := processor.NewProcessor()
	registry := collector.NewRegistry()
	collector.RegisterBuiltin(registry, collector.Deps{
		Fetcher:   f,
		Processor: proc,
		MinWords:  p.MinWords,
		Interval:  p.PerSourceInterval,
		Logger:    log.With().Str("component", "collector").Logger(),
	})
	fundus.Register(registry, fundus.Deps{
		Transport: f,
		Processor: proc,
		MinWords:  p.MinWords,
		Interval:  p.PerSourceInterval,
		Logger:    log.With().Str("component", "fundus").Logger(),
	})

	popts := persistor.OptionsFromConfig(p)
	popts.Metrics = m
	popts.Logger = log
	pers := persistor.New(store.News, mm, popts)

	copts := scheduler.Options{
		Workers:    p.WorkerPool,
		RunTimeout: p.RunTimeout,
		Metrics:    m,
		Logger:     log,
	}
	if store.Redis != nil {
		lockTTL := p.RunTimeout
		if lockTTL <= 0 {
			lockTTL = time.Hour
		}
		copts.Lock = storage.NewRunLock(store.Redis, runLockKey, lockTTL)
		copts.Reports = storage.NewReportCache(store.Redis, reportTTL)
	}

	return &App{
		Config:      cfg,
		Store:       store,
		Fetcher:     f,
		Media:       mm,
		Registry:    registry,
		Persistor:   pers,
		Coordinator: scheduler.NewCoordinator(registry, pers, copts),
		Metrics:     m,
		Log:         log,
	}, nil
}

// DefaultRequest 由配置生成的运行请求，sources 为空时取当前模式下全部来源
func (a *App) DefaultRequest(sources []string) scheduler.RunRequest {
	if len(sources) == 0 {
		sources = []string{collector.SourceAll}
	}
	return scheduler.RunRequest{
		Sources:              sources,
		Mode:                 a.Config.Pipeline.Mode,
		MaxArticlesPerSource: a.Config.Pipeline.MaxArticlesPerSource,
		DryRun:               a.Config.Pipeline.DryRun,
	}
}

func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
