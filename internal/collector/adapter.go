package collector

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/LJTian/LingoNews/internal/extractor"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/rss"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

// Spec 描述一个 RSS + 文章页来源
type Spec struct {
	Name      string
	Feeds     []string
	Selectors []string
	// NormalizeURL 在通用规范化之后调用，可为空
	NormalizeURL func(string) string
}

// Deps 适配器运行所需的共享组件
type Deps struct {
	Fetcher   PageFetcher
	Processor *processor.Processor
	MinWords  int
	// Interval 同一来源两次文章请求之间的最小间隔
	Interval time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Adapter 通用的 RSS 来源实现，各出版方只提供 Spec
type Adapter struct {
	spec Spec
	deps Deps
	log  zerolog.Logger
}

func NewAdapter(spec Spec, deps Deps) *Adapter {
	if deps.Processor == nil {
		deps.Processor = processor.NewProcessor()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Adapter{
		spec: spec,
		deps: deps,
		log:  deps.Logger.With().Str("source", spec.Name).Logger(),
	}
}

func (a *Adapter) Name() string { return a.spec.Name }

// Spec 返回来源描述
func (a *Adapter) Spec() Spec { return a.spec }

func (a *Adapter) Crawl(ctx context.Context, limit int, emit EmitFunc) (Stats, error) {
	var st Stats
	seen := make(map[string]struct{})
	limiter := newLimiter(a.deps.Interval)
	feedsOK := 0

	for _, feedURL := range a.spec.Feeds {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if limit > 0 && st.Yielded >= limit {
			break
		}

		entries, err := a.loadFeed(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.FeedErrors++
			a.log.Warn().Err(err).Str("feed", feedURL).Msg("feed failed, moving on")
			continue
		}
		feedsOK++

		for _, e := range entries {
			if limit > 0 && st.Yielded >= limit {
				break
			}

			abs, canon, err := a.resolveLink(feedURL, e.Link)
			if err != nil {
				st.Errors++
				a.log.Debug().Err(err).Str("link", e.Link).Msg("skip entry with invalid link")
				continue
			}
			if _, dup := seen[canon]; dup {
				st.DuplicateURL++
				continue
			}
			seen[canon] = struct{}{}
			st.Attempted++

			if err := limiter.Wait(ctx); err != nil {
				return st, ctxErr(ctx, err)
			}

			item, err := a.buildItem(ctx, abs, canon, e)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return st, ctx.Err()
			case errors.Is(err, errTooShort), errors.Is(err, extractor.ErrNothingExtracted):
				st.TooShort++
				a.log.Debug().Str("url", canon).Msg("dropped: not enough content")
				continue
			default:
				st.Errors++
				a.log.Warn().Err(err).Str("url", canon).Msg("article failed")
				continue
			}

			if err := emit(item); err != nil {
				return st, err
			}
			st.Yielded++
		}
	}

	if len(a.spec.Feeds) > 0 && feedsOK == 0 {
		return st, &SourceError{Source: a.spec.Name, Err: ErrAllFeedsFailed}
	}
	return st, nil
}

func (a *Adapter) loadFeed(ctx context.Context, feedURL string) ([]rss.Entry, error) {
	resp, err := a.deps.Fetcher.Fetch(ctx, feedURL, fetcher.KindRSS)
	if err != nil {
		return nil, err
	}
	return rss.Parse(resp.Body)
}

// resolveLink 返回用于抓取的绝对地址与用于去重的规范地址
func (a *Adapter) resolveLink(feedURL, link string) (string, string, error) {
	canon, err := urlnorm.Resolve(feedURL, link)
	if err != nil {
		return "", "", err
	}
	if a.spec.NormalizeURL != nil {
		canon = a.spec.NormalizeURL(canon)
	}

	abs := link
	if !urlnorm.IsHTTP(link) {
		abs = canon
	}
	return abs, canon, nil
}

func (a *Adapter) buildItem(ctx context.Context, abs, canon string, e rss.Entry) (NewsItem, error) {
	resp, err := a.deps.Fetcher.Fetch(ctx, abs, fetcher.KindArticle)
	if err != nil {
		return NewsItem{}, err
	}
	pageURL := resp.FinalURL
	if pageURL == "" {
		pageURL = abs
	}

	res, err := extractor.Extract(resp.Body, pageURL, a.spec.Selectors)
	if err != nil {
		return NewsItem{}, err
	}

	p := a.deps.Processor.Process(processor.Raw{Title: e.Title, Content: res.Content, Summary: e.Description})
	if p.WordCount < a.deps.MinWords {
		return NewsItem{}, errTooShort
	}

	item := NewsItem{
		Title:              p.Title,
		Content:            p.Content,
		URL:                canon,
		Source:             a.spec.Name,
		Summary:            p.Summary,
		ImageURL:           res.ImageURL,
		ImageAlt:           res.ImageAlt,
		Difficulty:         p.Difficulty,
		WordCount:          p.WordCount,
		ReadingTimeMinutes: p.ReadingTimeMinutes,
		KeyVocabulary:      p.KeyVocabulary,
		Tags:               NormalizeTags(e.Categories),
		Origin:             OriginNative,
		ExtraData:          map[string]any{"selector": res.Selector},
	}
	if item.ImageURL == "" && e.ImageURL != "" {
		item.ImageURL = e.ImageURL
	}
	if e.PubDate != nil {
		item.PublishedAt = e.PubDate.UTC()
	} else {
		item.PublishedAt = a.deps.Now().UTC()
		item.PublishedAtEstimated = true
		if e.RawPubDate != "" {
			item.ExtraData["raw_pub_date"] = e.RawPubDate
		}
	}

	if err := item.Validate(); err != nil {
		return NewsItem{}, err
	}
	return item, nil
}

// NormalizeTags 小写、去重、排序
func NormalizeTags(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.ToLower(processor.Normalize(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ctxErr limiter.Wait 在截止时间不足时返回自定义错误，这里统一成上下文错误
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}
