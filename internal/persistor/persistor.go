// Package persistor 对采集结果逐条执行去重闸门并写库
package persistor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/metrics"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/storage"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

// RecentWindow recent cap 统计的回溯窗口
const RecentWindow = 7 * 24 * time.Hour

// Outcome 单条候选的处理结果
type Outcome string

const (
	OutcomeSaved          Outcome = "saved"
	OutcomeDuplicateURL   Outcome = "duplicate_url"
	OutcomeDuplicateTitle Outcome = "duplicate_title"
	OutcomeTooShort       Outcome = "too_short"
	OutcomeRecentCap      Outcome = "recent_cap"
	OutcomeDryRun         Outcome = "dry_run"
	OutcomeError          Outcome = "error"
)

// Skipped 除 saved 与 error 外的结果都算跳过
func (o Outcome) Skipped() bool {
	return o != OutcomeSaved && o != OutcomeError
}

// Materializer 远程图片本地化，由 *media.Manager 实现
type Materializer interface {
	Materialize(ctx context.Context, remoteURL string) (string, error)
}

type Options struct {
	MinWords        int
	RecentCap       int
	TitleSimEnabled bool
	// TitleSimWindow 大于 0 时改用固定长度的首尾比较
	TitleSimWindow int
	DryRun         bool
	Now            func() time.Time
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// OptionsFromConfig 从流水线配置构造参数
func OptionsFromConfig(p config.PipelineConfig) Options {
	return Options{
		MinWords:        p.MinWords,
		RecentCap:       p.RecentCap,
		TitleSimEnabled: p.TitleSimEnabled,
		TitleSimWindow:  p.TitleSimWindow,
		DryRun:          p.DryRun,
	}
}

// Persistor 唯一的写库组件；同一实例不能并发调用 Persist
type Persistor struct {
	repo  *storage.NewsRepository
	media Materializer
	opts  Options
	log   zerolog.Logger
}

func New(repo *storage.NewsRepository, media Materializer, opts Options) *Persistor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Persistor{
		repo:  repo,
		media: media,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "persistor").Logger(),
	}
}

// WithDryRun 返回只评估闸门、不写库的副本
func (p *Persistor) WithDryRun() *Persistor {
	cp := *p
	cp.opts.DryRun = true
	return &cp
}

// Persist 依次执行 URL 去重、标题相似、字数、近期上限四道闸门，通过后在单个事务中写入
func (p *Persistor) Persist(ctx context.Context, item collector.NewsItem) Outcome {
	outcome := p.persist(ctx, item)
	p.opts.Metrics.ObserveOutcome(item.Source, string(outcome))
	return outcome
}

func (p *Persistor) persist(ctx context.Context, item collector.NewsItem) Outcome {
	log := p.log.With().Str("source", item.Source).Str("url", item.URL).Logger()

	canonical, err := urlnorm.Canonical(item.URL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid candidate url")
		return OutcomeError
	}

	exists, err := p.repo.ExistsByURL(ctx, canonical)
	if err != nil {
		log.Warn().Err(err).Msg("url lookup failed")
		return OutcomeError
	}
	if exists {
		log.Debug().Msg("duplicate url")
		return OutcomeDuplicateURL
	}

	if p.opts.TitleSimEnabled {
		titles, err := p.repo.FindTitlesBySource(ctx, item.Source)
		if err != nil {
			log.Warn().Err(err).Msg("title lookup failed")
			return OutcomeError
		}
		if match, ok := p.similarTitle(item.Title, titles); ok {
			log.Debug().Str("title", item.Title).Str("existing", match).Msg("duplicate title")
			return OutcomeDuplicateTitle
		}
	}

	if words := processor.WordCount(item.Content); words < p.opts.MinWords {
		log.Debug().Int("words", words).Msg("too short")
		return OutcomeTooShort
	}

	if capped, err := p.recentCapReached(ctx, item); err != nil {
		log.Warn().Err(err).Msg("recent count failed")
		return OutcomeError
	} else if capped {
		log.Info().Int("cap", p.opts.RecentCap).Msg("recent cap reached")
		return OutcomeRecentCap
	}

	if p.opts.DryRun {
		return OutcomeDryRun
	}
	if err := ctx.Err(); err != nil {
		return OutcomeError
	}

	row := toRow(item, canonical)
	localPath := p.materialize(ctx, log, row.ImageURL)

	err = p.write(ctx, row, localPath)
	if err != nil && storage.IsSerializationFailure(err) {
		log.Debug().Err(err).Msg("serialization failure, retrying once")
		row = toRow(item, canonical)
		err = p.write(ctx, row, localPath)
	}
	switch {
	case err == nil:
		log.Debug().Uint("id", row.ID).Msg("saved")
		return OutcomeSaved
	case errors.Is(err, storage.ErrDuplicateURL):
		log.Debug().Msg("duplicate url on insert")
		return OutcomeDuplicateURL
	default:
		log.Error().Err(err).Msg("write failed")
		return OutcomeError
	}
}

// similarTitle 返回第一条与候选标题相似的已存标题
func (p *Persistor) similarTitle(title string, existing []string) (string, bool) {
	cand := NormalizeTitle(title)
	if cand == "" {
		return "", false
	}
	for _, t := range existing {
		other := NormalizeTitle(t)
		var dup bool
		if p.opts.TitleSimWindow > 0 {
			dup = SimilarWindow(cand, other, p.opts.TitleSimWindow)
		} else {
			dup = SimilarProportional(cand, other)
		}
		if dup {
			return t, true
		}
	}
	return "", false
}

// recentCapReached 只对最近 7 天内发布的候选生效
func (p *Persistor) recentCapReached(ctx context.Context, item collector.NewsItem) (bool, error) {
	if p.opts.RecentCap <= 0 {
		return false, nil
	}
	since := p.opts.Now().Add(-RecentWindow)
	if item.PublishedAt.Before(since) {
		return false, nil
	}
	n, err := p.repo.CountRecentBySource(ctx, item.Source, since)
	if err != nil {
		return false, err
	}
	return n >= int64(p.opts.RecentCap), nil
}

// materialize 图片失败不影响写入，保留远程地址
func (p *Persistor) materialize(ctx context.Context, log zerolog.Logger, imageURL string) string {
	if p.media == nil || imageURL == "" || storage.IsLocalImage(imageURL) {
		return ""
	}
	rel, err := p.media.Materialize(ctx, imageURL)
	if err != nil {
		log.Info().Err(err).Str("image", imageURL).Msg("image kept remote")
		return ""
	}
	return rel
}

func (p *Persistor) write(ctx context.Context, row *storage.News, localPath string) error {
	return p.repo.WithTx(ctx, func(tx *storage.NewsRepository) error {
		if err := tx.Insert(ctx, row); err != nil {
			return err
		}
		if localPath == "" {
			return nil
		}
		if err := tx.UpdateImagePath(ctx, row.ID, localPath); err != nil {
			return err
		}
		row.ImageURL = localPath
		return nil
	})
}

func toRow(item collector.NewsItem, canonical string) *storage.News {
	row := &storage.News{
		Title:                item.Title,
		Content:              item.Content,
		SourceURL:            canonical,
		Source:               item.Source,
		PublishDate:          item.PublishedAt.UTC(),
		PublishDateEstimated: item.PublishedAtEstimated,
		Summary:              item.Summary,
		ImageURL:             item.ImageURL,
		ImageAlt:             item.ImageAlt,
		DifficultyLevel:      string(item.Difficulty),
		KeyVocabulary:        item.KeyVocabulary,
		Origin:               item.Origin,
	}
	if len(item.Tags) > 0 {
		row.Tags = append([]string(nil), item.Tags...)
	}
	if len(item.ExtraData) > 0 {
		row.ExtraData = make(map[string]any, len(item.ExtraData))
		for k, v := range item.ExtraData {
			row.ExtraData[k] = v
		}
	}
	if !storage.ValidImageURL(row.ImageURL) {
		row.ImageURL = ""
	}
	return row
}
