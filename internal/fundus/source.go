package fundus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/extractor"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

// Transporter 提供按请求类别复用的 RoundTripper，由 *fetcher.Fetcher 实现
type Transporter interface {
	Transport(kind fetcher.Kind) http.RoundTripper
}

// Deps 与原生适配器一致的共享组件
type Deps struct {
	Transport Transporter
	Processor *processor.Processor
	MinWords  int
	Interval  time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Source 目录中一个出版方对应的采集来源
type Source struct {
	pub  Publisher
	deps Deps
	log  zerolog.Logger
}

var _ collector.Source = (*Source)(nil)

// New 按出版方 id 创建来源，未知 id 返回 ConfigError
func New(id string, deps Deps) (*Source, error) {
	pub, ok := Lookup(id)
	if !ok {
		return nil, &config.ConfigError{Field: "source", Err: fmt.Errorf("unknown publisher %q", id)}
	}
	return NewFromPublisher(pub, deps), nil
}

func NewFromPublisher(pub Publisher, deps Deps) *Source {
	if deps.Processor == nil {
		deps.Processor = processor.NewProcessor()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Source{
		pub:  pub,
		deps: deps,
		log:  deps.Logger.With().Str("source", pub.ID).Logger(),
	}
}

// Register 以 fundus 模式注册目录中的全部出版方
func Register(r *collector.Registry, deps Deps) {
	for _, p := range Publishers() {
		r.Register(config.ModeFundus, NewFromPublisher(p, deps))
	}
}

func (s *Source) Name() string { return s.pub.ID }

func (s *Source) newCollector(ctx context.Context, kind fetcher.Kind) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(fetcher.BrowserUserAgent),
	)
	if s.deps.Transport != nil {
		c.WithTransport(s.deps.Transport.Transport(kind))
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       s.deps.Interval,
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("fundus: limit rule: %w", err)
	}
	return c, nil
}

// discovery 发现阶段的结果；dups 记录每个链接被重复列出的次数
type discovery struct {
	links  []string
	dups   map[string]int
	failed int
}

// discover 按 sitemap、feed 的声明顺序收集文章链接
func (s *Source) discover(ctx context.Context) (discovery, error) {
	d := discovery{dups: make(map[string]int)}
	c, err := s.newCollector(ctx, fetcher.KindRSS)
	if err != nil {
		return d, err
	}

	var found []string
	add := func(base, link string) {
		if abs, err := urlnorm.Resolve(base, link); err == nil {
			found = append(found, abs)
		}
	}
	c.OnXML("//url/loc", func(e *colly.XMLElement) {
		add(e.Request.URL.String(), strings.TrimSpace(e.Text))
	})
	c.OnXML("//item/link", func(e *colly.XMLElement) {
		add(e.Request.URL.String(), strings.TrimSpace(e.Text))
	})
	c.OnXML("//entry/link", func(e *colly.XMLElement) {
		add(e.Request.URL.String(), e.Attr("href"))
	})

	seen := make(map[string]struct{})
	for _, u := range s.pub.discoveryURLs() {
		if err := ctx.Err(); err != nil {
			return d, err
		}
		found = found[:0]
		if err := c.Visit(u); err != nil {
			if ctx.Err() != nil {
				return d, ctx.Err()
			}
			d.failed++
			s.log.Warn().Err(err).Str("feed", u).Msg("discovery failed, moving on")
			continue
		}
		for _, l := range found {
			if _, dup := seen[l]; dup {
				d.dups[l]++
				continue
			}
			seen[l] = struct{}{}
			d.links = append(d.links, l)
		}
	}
	return d, nil
}

func (s *Source) Crawl(ctx context.Context, limit int, emit collector.EmitFunc) (collector.Stats, error) {
	var st collector.Stats

	d, err := s.discover(ctx)
	st.FeedErrors = d.failed
	if err != nil {
		return st, err
	}
	if total := len(s.pub.discoveryURLs()); total > 0 && d.failed == total {
		return st, &collector.SourceError{Source: s.pub.ID, Err: collector.ErrAllFeedsFailed}
	}

	c, err := s.newCollector(ctx, fetcher.KindArticle)
	if err != nil {
		return st, err
	}
	var (
		parsed   article
		parseErr error
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		parsed, parseErr = parseArticle(e.DOM, e.Response.Body, e.Request.URL.String(), s.pub.Selectors)
	})

	for _, link := range d.links {
		if limit > 0 && st.Yielded >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Attempted++
		// 只统计实际处理到的链接的重复次数
		st.DuplicateURL += d.dups[link]

		parsed, parseErr = article{}, errNotHTML
		if err := c.Visit(link); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.Errors++
			s.log.Warn().Err(err).Str("url", link).Msg("article failed")
			continue
		}

		item, err := s.toNewsItem(link, parsed, parseErr)
		switch {
		case err == nil:
		case errors.Is(err, errTooShort), errors.Is(err, extractor.ErrNothingExtracted):
			st.TooShort++
			continue
		default:
			st.Errors++
			s.log.Warn().Err(err).Str("url", link).Msg("article rejected")
			continue
		}

		if err := emit(item); err != nil {
			return st, err
		}
		st.Yielded++
	}
	return st, nil
}

var (
	errNotHTML  = errors.New("response is not html")
	errTooShort = errors.New("content too short")
)

func (s *Source) toNewsItem(link string, a article, parseErr error) (collector.NewsItem, error) {
	if parseErr != nil {
		return collector.NewsItem{}, parseErr
	}

	p := s.deps.Processor.Process(processor.Raw{Title: a.Title, Content: a.Body, Summary: a.Description})
	if p.WordCount < s.deps.MinWords {
		return collector.NewsItem{}, errTooShort
	}

	canon, err := urlnorm.Canonical(link)
	if err != nil {
		return collector.NewsItem{}, err
	}

	item := collector.NewsItem{
		Title:              p.Title,
		Content:            p.Content,
		URL:                canon,
		Source:             s.pub.ID,
		Summary:            p.Summary,
		ImageURL:           a.ImageURL,
		ImageAlt:           processor.Normalize(a.ImageAlt),
		Difficulty:         p.Difficulty,
		WordCount:          p.WordCount,
		ReadingTimeMinutes: p.ReadingTimeMinutes,
		KeyVocabulary:      p.KeyVocabulary,
		Tags:               collector.NormalizeTags(a.Keywords),
		Origin:             collector.OriginFundus,
		ExtraData:          map[string]any{"publisher": s.pub.Name, "parsed_via": a.Via},
	}
	if a.Published != nil {
		item.PublishedAt = *a.Published
	} else {
		item.PublishedAt = s.deps.Now().UTC()
		item.PublishedAtEstimated = true
	}

	if err := item.Validate(); err != nil {
		return collector.NewsItem{}, err
	}
	return item, nil
}
