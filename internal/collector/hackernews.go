package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/LingoNews/internal/extractor"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/rss"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

const (
	hnBaseURL  = "https://hacker-news.firebaseio.com/v0"
	hnMaxItems = 60
)

// hnSelectors 外链站点结构各异，只用通用容器，匹配不到时交给 readability
var hnSelectors = []string{"article", "main", `[role="main"]`}

// HackerNews 通过官方 Firebase API 取热门故事，再抓取故事指向的原文
type HackerNews struct {
	*Adapter
	baseURL string
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

func NewHackerNews(d Deps) *HackerNews { return newHackerNews(d, hnBaseURL) }

func newHackerNews(d Deps, baseURL string) *HackerNews {
	baseURL = strings.TrimSuffix(baseURL, "/")
	spec := Spec{
		Name:      "HackerNews",
		Feeds:     []string{baseURL + "/topstories.json"},
		Selectors: hnSelectors,
	}
	return &HackerNews{Adapter: NewAdapter(spec, d), baseURL: baseURL}
}

// Crawl 按热度排名顺序处理故事；Ask HN 等没有外链的条目跳过
func (h *HackerNews) Crawl(ctx context.Context, limit int, emit EmitFunc) (Stats, error) {
	var st Stats

	var ids []int
	if err := h.getJSON(ctx, h.spec.Feeds[0], &ids); err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.FeedErrors++
		h.log.Warn().Err(err).Msg("top stories failed")
		return st, &SourceError{Source: h.spec.Name, Err: ErrAllFeedsFailed}
	}
	if len(ids) > hnMaxItems {
		ids = ids[:hnMaxItems]
	}

	seen := make(map[string]struct{})
	limiter := newLimiter(h.deps.Interval)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if limit > 0 && st.Yielded >= limit {
			break
		}

		var it hnItem
		if err := h.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", h.baseURL, id), &it); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.Errors++
			h.log.Debug().Err(err).Int("hn_id", id).Msg("fetch item failed")
			continue
		}
		if it.Type != "story" || it.Dead || it.Deleted || strings.TrimSpace(it.Title) == "" || !urlnorm.IsHTTP(it.URL) {
			continue
		}

		canon, err := urlnorm.Canonical(it.URL)
		if err != nil {
			st.Errors++
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

		published := time.Unix(it.Time, 0).UTC()
		item, err := h.buildItem(ctx, it.URL, canon, rss.Entry{Title: it.Title, Link: it.URL, PubDate: &published})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return st, ctx.Err()
		case errors.Is(err, errTooShort), errors.Is(err, extractor.ErrNothingExtracted):
			st.TooShort++
			continue
		default:
			st.Errors++
			h.log.Debug().Err(err).Str("url", canon).Msg("article failed")
			continue
		}

		item.ExtraData["hn_id"] = it.ID
		item.ExtraData["score"] = it.Score
		item.ExtraData["comments"] = it.Descendants
		item.ExtraData["author"] = it.By
		if err := emit(item); err != nil {
			return st, err
		}
		st.Yielded++
	}
	return st, nil
}

func (h *HackerNews) getJSON(ctx context.Context, url string, v any) error {
	resp, err := h.deps.Fetcher.Fetch(ctx, url, fetcher.KindRSS)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("hackernews: decode %s: %w", url, err)
	}
	return nil
}
