package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/metrics"
	"github.com/LJTian/LingoNews/internal/persistor"
	"github.com/LJTian/LingoNews/internal/storage"
)

// ErrRunInProgress 已有运行持有锁
var ErrRunInProgress = errors.New("another run is in progress")

// RunRequest 一次运行的输入
type RunRequest struct {
	Sources              []string
	Mode                 config.Mode
	MaxArticlesPerSource int
	DryRun               bool
}

type Options struct {
	Workers    int
	RunTimeout time.Duration
	// Lock 与 Reports 可选，未配置 Redis 时为 nil
	Lock    *storage.RunLock
	Reports *storage.ReportCache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Coordinator 来源级并行抓取，所有写入经由单个 writer 串行完成
type Coordinator struct {
	registry  *collector.Registry
	persistor *persistor.Persistor
	opts      Options
	log       zerolog.Logger
}

func NewCoordinator(registry *collector.Registry, p *persistor.Persistor, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Coordinator{
		registry:  registry,
		persistor: p,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "coordinator").Logger(),
	}
}

type write struct {
	idx  int
	item collector.NewsItem
}

// Run 执行一次采集；来源解析失败返回 ConfigError，其余失败体现在报告中
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	sources, err := c.registry.Resolve(req.Sources, req.Mode)
	if err != nil {
		return nil, err
	}
	if req.MaxArticlesPerSource <= 0 {
		return nil, &config.ConfigError{Field: "max", Err: fmt.Errorf("must be positive, got %d", req.MaxArticlesPerSource)}
	}

	if c.opts.Lock != nil {
		if err := c.opts.Lock.TryLock(ctx); err != nil {
			if errors.Is(err, storage.ErrLockNotAcquired) {
				return nil, ErrRunInProgress
			}
			c.log.Warn().Err(err).Msg("run lock unavailable, continuing without it")
		} else {
			defer func() {
				if err := c.opts.Lock.Unlock(context.Background()); err != nil {
					c.log.Warn().Err(err).Msg("release run lock failed")
				}
			}()
		}
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    req.DryRun,
		Sources:   make([]SourceReport, len(sources)),
	}
	log := c.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("sources", len(sources)).Int("max", req.MaxArticlesPerSource).Bool("dry_run", req.DryRun).Msg("run started")

	runCtx := ctx
	if c.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	p := c.persistor
	if req.DryRun {
		p = p.WithDryRun()
	}

	counters := make([]persistor.Counters, len(sources))
	writes := make(chan write)
	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		for w := range writes {
			// 写库前的取消检查点
			if runCtx.Err() != nil {
				continue
			}
			counters[w.idx].Add(p.Persist(runCtx, w.item))
		}
	}()

	for i, src := range sources {
		report.Sources[i].Source = src.Name()
	}

	stats := make([]collector.Stats, len(sources))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, src := range sources {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			stats[i] = c.crawlSource(runCtx, log, i, src, req.MaxArticlesPerSource, writes, &report.Sources[i])
			return nil
		})
	}
	_ = g.Wait()
	close(writes)
	writerDone.Wait()

	for i := range report.Sources {
		sr := &report.Sources[i]
		// 来源内部丢弃的条目与写库结果合并为同一份计数
		counters[i].TooShort += stats[i].TooShort
		counters[i].DuplicateURL += stats[i].DuplicateURL
		c.opts.Metrics.AddOutcomes(sr.Source, string(persistor.OutcomeTooShort), stats[i].TooShort)
		c.opts.Metrics.AddOutcomes(sr.Source, string(persistor.OutcomeDuplicateURL), stats[i].DuplicateURL)
		sr.Outcomes = counters[i]
		sr.Saved = counters[i].Saved
		sr.Skipped = counters[i].Skipped()
		sr.Errors += counters[i].Errors
		report.Totals.Merge(counters[i])
	}
	report.FinishedAt = time.Now().UTC()
	report.Cancelled = ctx.Err() != nil
	report.TimedOut = !report.Cancelled && errors.Is(runCtx.Err(), context.DeadlineExceeded)

	c.opts.Metrics.ObserveRun(report.Status())
	c.cacheReports(report)
	log.Info().
		Int("saved", report.Totals.Saved).
		Int("skipped", report.Totals.Skipped()).
		Int("errors", report.Totals.Errors).
		Int("failed_sources", report.Failed()).
		Str("status", report.Status()).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("run finished")
	return report, nil
}

// crawlSource 在单个 worker 中顺序抓取一个来源
func (c *Coordinator) crawlSource(ctx context.Context, log zerolog.Logger, idx int, src collector.Source, limit int, writes chan<- write, sr *SourceReport) collector.Stats {
	start := time.Now()
	log = log.With().Str("source", src.Name()).Logger()

	stats, err := src.Crawl(ctx, limit, func(it collector.NewsItem) error {
		select {
		case writes <- write{idx: idx, item: it}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	sr.Attempted = stats.Attempted
	sr.Yielded = stats.Yielded
	sr.Errors = stats.Errors + stats.FeedErrors
	sr.Duration = time.Since(start)

	switch {
	case err == nil:
		log.Info().Int("attempted", stats.Attempted).Int("yielded", stats.Yielded).Msg("source done")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Info().Err(err).Int("yielded", stats.Yielded).Msg("source stopped")
	default:
		sr.Failed = true
		sr.Err = err.Error()
		log.Warn().Err(err).Msg("source failed")
	}
	return stats
}

func (c *Coordinator) cacheReports(report *RunReport) {
	if c.opts.Reports == nil || report.DryRun {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, sr := range report.Sources {
		if err := c.opts.Reports.Put(ctx, sr.Source, sr); err != nil {
			c.log.Warn().Err(err).Str("source", sr.Source).Msg("cache report failed")
			return
		}
	}
}

// LastReport 读取缓存的来源最近一次报告
func (c *Coordinator) LastReport(ctx context.Context, source string) (*SourceReport, bool, error) {
	if c.opts.Reports == nil {
		return nil, false, nil
	}
	var sr SourceReport
	ok, err := c.opts.Reports.Get(ctx, source, &sr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &sr, true, nil
}
