// Package extractor 按站点选择器从文章页 HTML 中提取正文与首图
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	minFragmentChars = 10
	noiseSelector    = "script, style, nav, aside, noscript, form, button, iframe, figcaption"
)

// ErrNothingExtracted 页面没有可用正文
var ErrNothingExtracted = errors.New("nothing extractable")

// Result 提取结果；正文不做截断
type Result struct {
	Content  string
	ImageURL string
	ImageAlt string
	// Selector 命中的选择器，readability 兜底时为 "readability"
	Selector string
}

// ExtractError 页面无法解析
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string { return fmt.Sprintf("extract %s: %v", e.URL, e.Err) }

func (e *ExtractError) Unwrap() error { return e.Err }

// Extract 依次尝试 selectors，第一个匹配到元素的选择器胜出；都不匹配时退回 readability
func Extract(body []byte, pageURL string, selectors []string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ExtractError{URL: pageURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractError{URL: pageURL, Err: err}
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	for _, sel := range selectors {
		matched := doc.Find(sel)
		if matched.Length() == 0 {
			continue
		}
		res := fromSelection(matched, base)
		if res.Content == "" {
			return nil, &ExtractError{URL: pageURL, Err: ErrNothingExtracted}
		}
		res.Selector = sel
		return res, nil
	}

	res, err := readabilityFallback(body, base)
	if err != nil {
		return nil, &ExtractError{URL: pageURL, Err: err}
	}
	return res, nil
}

func fromSelection(matched *goquery.Selection, base *url.URL) *Result {
	matched.Find(noiseSelector).Remove()

	// 嵌套匹配时只保留最外层，避免段落重复
	roots := matched.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("*").FilterFunction(func(_ int, p *goquery.Selection) bool {
			return matched.IsSelection(p)
		}).Length() == 0
	})

	var fragments []string
	roots.Each(func(_ int, el *goquery.Selection) {
		paras := el.Find("p")
		if paras.Length() == 0 {
			if t := collapse(el.Text()); utf8.RuneCountInString(t) >= minFragmentChars {
				fragments = append(fragments, t)
			}
			return
		}
		paras.Each(func(_ int, p *goquery.Selection) {
			if t := collapse(p.Text()); utf8.RuneCountInString(t) >= minFragmentChars {
				fragments = append(fragments, t)
			}
		})
	})

	res := &Result{Content: strings.Join(fragments, " ")}
	res.ImageURL, res.ImageAlt = pickImage(roots, base)
	return res
}

// pickImage 取正文内第一张可用图片，优先有 alt 的
func pickImage(roots *goquery.Selection, base *url.URL) (string, string) {
	var firstURL, firstAlt string
	var found bool
	var withAltURL, withAlt string

	roots.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if isTracker(img) {
			return true
		}
		src := imageSource(img)
		abs := resolve(base, src)
		if abs == "" {
			return true
		}
		alt := collapse(img.AttrOr("alt", ""))
		if !found {
			firstURL, firstAlt, found = abs, alt, true
		}
		if alt != "" {
			withAltURL, withAlt = abs, alt
			return false
		}
		return true
	})

	if withAltURL != "" {
		return withAltURL, withAlt
	}
	return firstURL, firstAlt
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset := strings.TrimSpace(img.AttrOr("srcset", "")); srcset != "" {
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// isTracker 识别 1x1 像素跟踪图
func isTracker(img *goquery.Selection) bool {
	w := strings.TrimSpace(img.AttrOr("width", ""))
	h := strings.TrimSpace(img.AttrOr("height", ""))
	if (w == "1" || w == "0") && (h == "1" || h == "0") {
		return true
	}
	src := strings.ToLower(strings.TrimSpace(img.AttrOr("src", "")))
	if u, err := url.Parse(src); err == nil {
		src = u.Path
	}
	name := path.Base(src)
	if name == "pixel.gif" || name == "spacer.gif" {
		return true
	}
	// 只认完整的 1x1 尺寸记号，2021x1080 之类不算
	for _, tok := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok == "1x1" {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func readabilityFallback(body []byte, base *url.URL) (*Result, error) {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return nil, ErrNothingExtracted
	}

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil || buf.Len() == 0 {
		return nil, ErrNothingExtracted
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, ErrNothingExtracted
	}
	res := fromSelection(doc.Find("body"), base)
	if res.Content == "" {
		return nil, ErrNothingExtracted
	}
	res.Selector = "readability"
	return res, nil
}

// collapse 合并空白，保证片段内只有单个空格
func collapse(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
