package processor

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Difficulty 文章难度等级
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// 难度阈值，未经语料校准
const (
	BeginnerMaxAvgWordLen   = 4.7
	BeginnerMaxLongRatio    = 0.18
	AdvancedMinAvgWordLen   = 5.3
	AdvancedMinLongRatio    = 0.30
	LongWordMinRunes        = 7
	keyVocabularyMinLetters = 7
)

// Valid 判断是否为合法等级
func (d Difficulty) Valid() bool {
	switch d {
	case Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

// TextStats 难度判定使用的统计量
type TextStats struct {
	Words         int
	AvgWordLen    float64
	LongWordRatio float64
}

// Analyze 统计词数、平均词长与长词比例；token 去掉首尾标点后计长度
func Analyze(content string) TextStats {
	var words, chars, long int
	for _, tok := range strings.FieldsFunc(content, isASCIISpace) {
		w := strings.TrimFunc(tok, isWordBoundary)
		if w == "" {
			continue
		}
		n := utf8.RuneCountInString(w)
		words++
		chars += n
		if n >= LongWordMinRunes {
			long++
		}
	}
	if words == 0 {
		return TextStats{}
	}
	return TextStats{
		Words:         words,
		AvgWordLen:    float64(chars) / float64(words),
		LongWordRatio: float64(long) / float64(words),
	}
}

// Classify 基于平均词长与长词比例的确定性规则；没有单词时视为 beginner
func Classify(content string) Difficulty {
	s := Analyze(content)
	if s.Words == 0 {
		return Beginner
	}
	switch {
	case s.AvgWordLen >= AdvancedMinAvgWordLen || s.LongWordRatio >= AdvancedMinLongRatio:
		return Advanced
	case s.AvgWordLen < BeginnerMaxAvgWordLen && s.LongWordRatio < BeginnerMaxLongRatio:
		return Beginner
	default:
		return Intermediate
	}
}

func isWordBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

var stopWords = map[string]struct{}{
	"because": {}, "between": {}, "however": {}, "through": {}, "without": {},
	"against": {}, "already": {}, "another": {}, "whether": {}, "including": {},
	"although": {}, "according": {}, "several": {}, "reported": {}, "yesterday": {},
	"percent": {}, "million": {}, "billion": {}, "thousand": {}, "something": {},
}

// KeyVocabulary 取至少 7 个字母的非停用词，按词频降序、字母序升序，逗号连接前 n 个
func KeyVocabulary(content string, n int) string {
	if n <= 0 {
		return ""
	}
	freq := make(map[string]int)
	for _, tok := range strings.FieldsFunc(content, isASCIISpace) {
		w := strings.ToLower(strings.TrimFunc(tok, isWordBoundary))
		if utf8.RuneCountInString(w) < keyVocabularyMinLetters || !allLetters(w) {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		freq[w]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, ", ")
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
