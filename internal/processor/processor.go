// Package processor 负责正文清洗、统计与难度评估，所有函数均为纯函数
package processor

import (
	"html"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxTitleRunes   = 200
	MaxSummaryRunes = 200
	WordsPerMinute  = 200
	KeyVocabSize    = 8
)

var strictPolicy = bluemonday.StrictPolicy()

// Raw 是适配器交给处理器的原始文章
type Raw struct {
	Title   string
	Content string
	Summary string
}

// Processed 清洗后的文章与派生字段
type Processed struct {
	Title              string
	Content            string
	Summary            string
	WordCount          int
	ReadingTimeMinutes int
	Difficulty         Difficulty
	KeyVocabulary      string
}

// Processor 组合 Normalize 与 Classify，原生适配器与 fundus 共用
type Processor struct {
	vocabSize int
}

func NewProcessor() *Processor {
	return &Processor{vocabSize: KeyVocabSize}
}

func (p *Processor) Process(raw Raw) Processed {
	content := Normalize(raw.Content)
	summary := PlainText(raw.Summary)
	if summary == "" {
		summary = DeriveSummary(content, MaxSummaryRunes)
	} else {
		summary = TruncateRunes(summary, MaxSummaryRunes)
	}

	wc := WordCount(content)
	return Processed{
		Title:              TruncateRunes(Normalize(raw.Title), MaxTitleRunes),
		Content:            content,
		Summary:            summary,
		WordCount:          wc,
		ReadingTimeMinutes: ReadingTime(wc),
		Difficulty:         Classify(content),
		KeyVocabulary:      KeyVocabulary(content, p.vocabSize),
	}
}

// Normalize 解码 HTML 实体，把任意 Unicode 空白串替换为单个空格并去掉首尾空白
func Normalize(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// PlainText 去掉 HTML 标签后再 Normalize，用于 RSS description
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return Normalize(strictPolicy.Sanitize(s))
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// WordCount 按 ASCII 空白切分并统计非空 token
func WordCount(s string) int {
	return len(strings.FieldsFunc(s, isASCIISpace))
}

// ReadingTime max(1, round(words/200)) 分钟
func ReadingTime(words int) int {
	m := int(math.Round(float64(words) / WordsPerMinute))
	if m < 1 {
		return 1
	}
	return m
}

// DeriveSummary 取第一句（以 . ! ? 结尾），最多 limit 个字符
func DeriveSummary(content string, limit int) string {
	content = Normalize(content)
	if content == "" {
		return ""
	}
	end := len(content)
	for i, r := range content {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next == len(content) || content[next] == ' ' {
			end = next
			break
		}
	}
	return TruncateRunes(content[:end], limit)
}

// TruncateRunes 按字符截断；超长时在 limit 内以省略号结尾
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace)
	return cut + "…"
}
