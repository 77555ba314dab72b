package fundus

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/LingoNews/internal/extractor"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/urlnorm"
)

// article 单页解析结果，字段可能为空
type article struct {
	Title       string
	Body        string
	Description string
	Published   *time.Time
	ImageURL    string
	ImageAlt    string
	Keywords    []string
	// Via 正文来源：jsonld 或命中的选择器
	Via string
}

var newsArticleTypes = map[string]struct{}{
	"NewsArticle":          {},
	"Article":              {},
	"ReportageNewsArticle": {},
	"AnalysisNewsArticle":  {},
	"BlogPosting":          {},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseArticle 依次尝试 JSON-LD、OpenGraph，最后用正文选择器补全缺失的字段
func parseArticle(doc *goquery.Selection, body []byte, pageURL string, selectors []string) (article, error) {
	var a article
	applyJSONLD(&a, doc)
	applyOpenGraph(&a, doc)

	if a.Title == "" {
		a.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if a.Body == "" || a.ImageURL == "" {
		res, err := extractor.Extract(body, pageURL, selectors)
		switch {
		case err == nil:
			if a.Body == "" {
				a.Body = res.Content
				a.Via = res.Selector
			}
			if a.ImageURL == "" {
				a.ImageURL, a.ImageAlt = res.ImageURL, res.ImageAlt
			}
		case a.Body == "":
			return a, err
		}
	}

	a.ImageURL = resolveImage(pageURL, a.ImageURL)
	return a, nil
}

// resolveImage 只做绝对化，保留查询参数
func resolveImage(pageURL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || !urlnorm.IsHTTP(u.String()) {
		return ""
	}
	return u.String()
}

func applyJSONLD(a *article, doc *goquery.Selection) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &raw); err != nil {
			return true
		}
		obj := findNewsArticle(raw)
		if obj == nil {
			return true
		}
		a.Title = str(obj["headline"])
		a.Body = str(obj["articleBody"])
		a.Description = str(obj["description"])
		a.Published = parseDate(str(obj["datePublished"]))
		a.ImageURL = imageURL(obj["image"])
		a.Keywords = keywords(obj["keywords"])
		if a.Body != "" {
			a.Via = "jsonld"
		}
		return false
	})
}

// findNewsArticle 支持单对象、数组以及 @graph 嵌套
func findNewsArticle(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if obj := findNewsArticle(item); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if isNewsArticle(t["@type"]) {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findNewsArticle(graph)
		}
	}
	return nil
}

func isNewsArticle(v any) bool {
	switch t := v.(type) {
	case string:
		_, ok := newsArticleTypes[t]
		return ok
	case []any:
		for _, item := range t {
			if isNewsArticle(item) {
				return true
			}
		}
	}
	return false
}

func applyOpenGraph(a *article, doc *goquery.Selection) {
	meta := func(names ...string) string {
		for _, n := range names {
			sel := doc.Find(`meta[property="` + n + `"], meta[name="` + n + `"]`).First()
			if v := strings.TrimSpace(sel.AttrOr("content", "")); v != "" {
				return v
			}
		}
		return ""
	}

	if a.Title == "" {
		a.Title = meta("og:title", "twitter:title")
	}
	if a.Description == "" {
		a.Description = meta("og:description", "description", "twitter:description")
	}
	if a.ImageURL == "" {
		a.ImageURL = meta("og:image", "twitter:image")
		if a.ImageURL != "" {
			a.ImageAlt = meta("og:image:alt", "twitter:image:alt")
		}
	}
	if a.Published == nil {
		a.Published = parseDate(meta("article:published_time", "pubdate", "date"))
	}
	if len(a.Keywords) == 0 {
		doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
			if v := strings.TrimSpace(s.AttrOr("content", "")); v != "" {
				a.Keywords = append(a.Keywords, v)
			}
		})
	}
	if len(a.Keywords) == 0 {
		a.Keywords = keywords(meta("keywords", "news_keywords"))
	}
}

func str(v any) string {
	s, _ := v.(string)
	return processor.Normalize(s)
}

// imageURL 兼容字符串、ImageObject 以及二者的数组
func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if u := str(t["url"]); u != "" {
			return u
		}
		return str(t["contentUrl"])
	case []any:
		for _, item := range t {
			if u := imageURL(item); u != "" {
				return u
			}
		}
	}
	return ""
}

func keywords(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, k := range strings.Split(t, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	case []any:
		for _, item := range t {
			out = append(out, keywords(item)...)
		}
	}
	return out
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
