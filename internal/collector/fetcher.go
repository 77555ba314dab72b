package collector

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

const (
	OriginNative = "native"
	OriginFundus = "fundus"
)

// NewsItem 采集并完成清洗、难度评估后的文章，发出后不再修改
type NewsItem struct {
	Title                string
	Content              string
	URL                  string
	Source               string
	PublishedAt          time.Time
	PublishedAtEstimated bool
	Summary              string
	ImageURL             string
	ImageAlt             string
	Difficulty           processor.Difficulty
	WordCount            int
	ReadingTimeMinutes   int
	KeyVocabulary        string
	Tags                 []string
	Origin               string
	ExtraData            map[string]any
}

// ValidationError 条目不满足数据模型约束
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid news item: %s %s", e.Field, e.Reason)
}

// Validate 检查标题、URL、来源与难度等级
func (it NewsItem) Validate() error {
	switch {
	case it.Title == "":
		return &ValidationError{Field: "title", Reason: "is empty"}
	case utf8.RuneCountInString(it.Title) > processor.MaxTitleRunes:
		return &ValidationError{Field: "title", Reason: "exceeds 200 characters"}
	case !urlnorm.IsHTTP(it.URL):
		return &ValidationError{Field: "url", Reason: "is not an absolute http(s) url"}
	case it.Source == "":
		return &ValidationError{Field: "source", Reason: "is empty"}
	case !it.Difficulty.Valid():
		return &ValidationError{Field: "difficulty_level", Reason: fmt.Sprintf("%q is not a known level", it.Difficulty)}
	}
	return nil
}

// Stats 单个来源一次抓取的统计；TooShort 与 DuplicateURL 是在来源内部就被丢弃的条目
type Stats struct {
	Attempted    int
	Yielded      int
	TooShort     int
	DuplicateURL int
	Errors       int
	FeedErrors   int
}

// EmitFunc 接收一条文章；返回错误时抓取立即停止
type EmitFunc func(NewsItem) error

// Source 抽象每一个新闻来源
type Source interface {
	Name() string
	// Crawl 按 feed 声明顺序、条目顺序依次发出文章，达到 limit 条后停止
	Crawl(ctx context.Context, limit int, emit EmitFunc) (Stats, error)
}

// PageFetcher 适配器依赖的抓取能力，由 *fetcher.Fetcher 实现
type PageFetcher interface {
	Fetch(ctx context.Context, url string, kind fetcher.Kind) (*fetcher.Response, error)
}

// SourceError 整个来源失败（例如所有 feed 都不可用）
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }

func (e *SourceError) Unwrap() error { return e.Err }

var (
	ErrAllFeedsFailed = errors.New("all feeds failed")
	errTooShort       = errors.New("content too short")
)
