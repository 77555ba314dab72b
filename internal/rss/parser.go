// Package rss 将 RSS/Atom 字节流解析为有序的条目列表
package rss

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry 原始 RSS 条目；PubDate 为空表示源数据没有可解析的时间
type Entry struct {
	Title       string
	Link        string
	Description string
	PubDate     *time.Time
	RawPubDate  string
	ImageURL    string
	Categories  []string
}

// ParseError XML 格式错误，调用方记录日志后继续处理下一个 feed
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("rss parse: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Parse 解析 feed，按原顺序返回条目；缺少 title 或 link 的条目被丢弃
func Parse(body []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Err: fmt.Errorf("empty document")}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		link := extractLink(item)
		if title == "" || link == "" {
			continue
		}

		e := Entry{
			Title:       title,
			Link:        link,
			Description: firstNonEmpty(item.Description, item.Content),
			RawPubDate:  firstNonEmpty(item.Published, item.Updated),
			ImageURL:    ExtractImageURL(item),
			Categories:  item.Categories,
		}
		switch {
		case item.PublishedParsed != nil:
			e.PubDate = item.PublishedParsed
		case item.UpdatedParsed != nil:
			e.PubDate = item.UpdatedParsed
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// extractLink 优先使用 Link，其次是形如 URL 的 GUID
func extractLink(item *gofeed.Item) string {
	if l := strings.TrimSpace(item.Link); l != "" {
		return l
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	if strings.HasPrefix(item.GUID, "http") {
		return strings.TrimSpace(item.GUID)
	}
	return ""
}

// ExtractImageURL 按优先级取条目图片：Item.Image > media:thumbnail > media:content(medium=image) > image/* enclosure
func ExtractImageURL(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; isHTTPURL(u) {
				return u
			}
		}
		for _, content := range media["content"] {
			medium := content.Attrs["medium"]
			typ := content.Attrs["type"]
			if medium == "image" || strings.HasPrefix(typ, "image/") {
				if u := content.Attrs["url"]; isHTTPURL(u) {
					return u
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
