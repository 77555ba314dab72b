package persistor

import (
	"strings"
	"unicode"
)

// TitleSimRatio 首尾公共部分占较长标题的比例阈值
const TitleSimRatio = 0.6

// NormalizeTitle 小写，非字母数字替换为空格并合并
func NormalizeTitle(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// SimilarProportional 公共前缀或公共后缀不短于较长标题的 60% 即视为重复
func SimilarProportional(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	longest := max(len(ra), len(rb))
	// ceil(0.6 * n) 用整数计算
	need := (longest*6 + 9) / 10
	return commonPrefix(ra, rb) >= need || commonSuffix(ra, rb) >= need
}

// SimilarWindow 前 n 个或后 n 个字符相同即视为重复；任一标题短于 n 时不比较
func SimilarWindow(a, b string, n int) bool {
	ra, rb := []rune(a), []rune(b)
	if n <= 0 || len(ra) < n || len(rb) < n {
		return false
	}
	return string(ra[:n]) == string(rb[:n]) || string(ra[len(ra)-n:]) == string(rb[len(rb)-n:])
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
