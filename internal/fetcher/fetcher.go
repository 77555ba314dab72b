package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/metrics"
)

// Kind 请求类别，决定超时时间与 Accept 头
type Kind string

const (
	KindRSS     Kind = "rss"
	KindArticle Kind = "article"
	KindImage   Kind = "image"
)

const (
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	maxRedirects  = 5
	maxRetryAfter = 60 * time.Second
	minRetryDelay = time.Millisecond
)

var errTooManyRedirects = errors.New("too many redirects")

var acceptByKind = map[Kind]string{
	KindRSS:     "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5",
	KindArticle: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	KindImage:   "image/avif,image/webp,image/png,image/jpeg,image/gif,*/*;q=0.5",
}

// Options 抓取参数，通常来自 config.PipelineConfig
type Options struct {
	Timeout      time.Duration
	ImageTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	UserAgent    string
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Response 抓取结果
type Response struct {
	Body        []byte
	Status      int
	ContentType string
	FinalURL    string
}

// FetchError 重试耗尽或遇到不可重试错误时返回
type FetchError struct {
	Kind   Kind
	URL    string
	Status int
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s %s: status %d", e.Kind, e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Fetcher 带重试、退避与浏览器 UA 的 HTTP GET 客户端
type Fetcher struct {
	pages   *resty.Client
	images  *resty.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = BrowserUserAgent
	}
	if opts.RetryDelay < minRetryDelay {
		opts.RetryDelay = minRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 30 * time.Second
	}

	f := &Fetcher{metrics: opts.Metrics, log: opts.Logger}
	f.pages = f.newClient(opts.Timeout, opts)
	f.images = f.newClient(opts.ImageTimeout, opts)
	return f
}

func (f *Fetcher) newClient(timeout time.Duration, opts Options) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		})).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryDelay).
		SetRetryMaxWaitTime(maxRetryAfter).
		SetRetryAfter(retryAfter).
		AddRetryCondition(shouldRetry).
		AddRetryHook(func(r *resty.Response, err error) {
			ev := f.log.Debug()
			if r != nil {
				ev = ev.Int("status", r.StatusCode()).Str("url", r.Request.URL)
			}
			ev.Err(err).Msg("retrying fetch")
		})
}

// Fetch 执行 GET；仅 2xx 视为成功，其余状态或传输错误返回 *FetchError
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind Kind) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: kind, URL: rawURL, Cause: err}
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{Kind: kind, URL: rawURL, Cause: fmt.Errorf("invalid url")}
	}

	client := f.pages
	if kind == KindImage {
		client = f.images
	}

	start := time.Now()
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", acceptByKind[kind]).
		Get(rawURL)

	status := 0
	if resp != nil && resp.RawResponse != nil {
		status = resp.StatusCode()
	}
	f.metrics.ObserveFetch(string(kind), metrics.StatusClass(status), time.Since(start))

	if err != nil {
		return nil, &FetchError{Kind: kind, URL: rawURL, Status: 0, Cause: err}
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{Kind: kind, URL: rawURL, Status: status, Cause: errors.New(http.StatusText(status))}
	}

	finalURL := rawURL
	if resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	f.log.Debug().Str("kind", string(kind)).Str("url", rawURL).Int("status", status).
		Int("bytes", len(resp.Body())).Dur("took", time.Since(start)).Msg("fetched")

	return &Response{
		Body:        resp.Body(),
		Status:      status,
		ContentType: resp.Header().Get("Content-Type"),
		FinalURL:    finalURL,
	}, nil
}

// shouldRetry 连接错误、5xx、408、429 可重试；上下文取消、重定向超限和其它 4xx 不重试
func shouldRetry(r *resty.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, errTooManyRedirects) {
			return false
		}
		if r != nil && r.Request != nil && r.Request.Context().Err() != nil {
			return false
		}
		return true
	}
	if r == nil {
		return false
	}
	return IsRetryableStatus(r.StatusCode())
}

// IsRetryableStatus 判断状态码是否可重试
func IsRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// retryAfter 解析 Retry-After（秒数或 HTTP 日期）；返回 0 时 resty 退回指数退避
func retryAfter(_ *resty.Client, r *resty.Response) (time.Duration, error) {
	if r == nil {
		return 0, nil
	}
	return ParseRetryAfter(r.Header().Get("Retry-After"), time.Now()), nil
}

func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
