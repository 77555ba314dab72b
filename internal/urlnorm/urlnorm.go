// Package urlnorm 生成文章 URL 的规范形式，供去重与唯一索引使用
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams 不影响页面内容的统计参数
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"gclsrc":      {},
	"dclid":       {},
	"msclkid":     {},
	"ocid":        {},
	"cmpid":       {},
	"at_medium":   {},
	"at_campaign": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	ErrEmpty       = errors.New("urlnorm: empty url")
	ErrNotAbsolute = errors.New("urlnorm: not an absolute http(s) url")
)

// Canonical 小写 scheme/host、去掉默认端口与片段、剔除 utm_* 等跟踪参数并按 key 排序。
// 不做 http→https 升级，两者视为不同 URL
func Canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("urlnorm: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrNotAbsolute
	}

	u.Host = normalizeHost(u)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.RawQuery = cleanQuery(u.Query())
	u.Path = normalizePath(u.Path)
	u.RawPath = ""
	return u.String(), nil
}

// Resolve 以 base 为基准把 ref 解析成绝对 URL 后再 Canonical
func Resolve(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmpty
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("urlnorm: base: %w", err)
	}
	r, err := b.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("urlnorm: %w", err)
	}
	return Canonical(r.String())
}

// IsHTTP 判断是否为带 host 的 http(s) URL
func IsHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return (s == "http" || s == "https") && u.Host != ""
}

func normalizeHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || defaultPorts[u.Scheme] == port {
		return host
	}
	return host + ":" + port
}

func isTracking(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !isTracking(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// normalizePath 处理 . 与 .. 段，去掉末尾斜杠（根路径除外）
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}
