package processor

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeCollapsesWhitespaceAndEntities(t *testing.T) {
	got := Normalize("  Hello&nbsp;&amp; world \n\t again ")
	if got != "Hello & world again" {
		t.Fatalf("Normalize = %q", got)
	}
	if Normalize(" \n\t ") != "" {
		t.Fatalf("blank input should normalize to empty string")
	}
}

func TestPlainTextStripsTags(t *testing.T) {
	got := PlainText(`<p>Lead <b>text</b> &amp; more</p><script>x()</script>`)
	if !strings.HasPrefix(got, "Lead text & more") {
		t.Fatalf("PlainText = %q", got)
	}
	if strings.Contains(got, "<") {
		t.Fatalf("PlainText kept markup: %q", got)
	}
}

func TestWordCountSplitsOnASCIIWhitespace(t *testing.T) {
	if n := WordCount("a  b\tc\nd\r\n"); n != 4 {
		t.Fatalf("WordCount = %d, want 4", n)
	}
	if n := WordCount(""); n != 0 {
		t.Fatalf("WordCount(empty) = %d", n)
	}
}

func TestReadingTime(t *testing.T) {
	cases := map[int]int{0: 1, 99: 1, 250: 1, 300: 2, 1000: 5}
	for words, want := range cases {
		if got := ReadingTime(words); got != want {
			t.Fatalf("ReadingTime(%d) = %d, want %d", words, got, want)
		}
	}
}

func TestDeriveSummaryFirstSentence(t *testing.T) {
	got := DeriveSummary("First sentence here. Second one follows!", 200)
	if got != "First sentence here." {
		t.Fatalf("DeriveSummary = %q", got)
	}
	got = DeriveSummary("Is it raining? Yes.", 200)
	if got != "Is it raining?" {
		t.Fatalf("DeriveSummary question = %q", got)
	}
}

func TestDeriveSummaryRespectsLimit(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := DeriveSummary(long, 200)
	if n := utf8.RuneCountInString(got); n > 200 {
		t.Fatalf("summary has %d runes, want <= 200", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated summary should end with ellipsis: %q", got)
	}
}

func TestTruncateRunesHandlesMultibyte(t *testing.T) {
	out := TruncateRunes("你好世界啊", 3)
	if utf8.RuneCountInString(out) != 3 {
		t.Fatalf("TruncateRunes length = %d, want 3: %q", utf8.RuneCountInString(out), out)
	}
	if !strings.HasSuffix(out, "…") {
		t.Fatalf("TruncateRunes should append ellipsis: %q", out)
	}
	if full := TruncateRunes("short", 10); full != "short" {
		t.Fatalf("TruncateRunes should keep original when under limit: %q", full)
	}
}

func TestClassifyLevels(t *testing.T) {
	cases := []struct {
		text string
		want Difficulty
	}{
		{"The cat sat on the mat. It was a big red cat.", Beginner},
		{"The cat and elephants sat on a mat with giraffes", Intermediate},
		{"International negotiations regarding environmental sustainability continued.", Advanced},
		{"aaaaa aaaaa", Intermediate},
		{"", Beginner},
	}
	for _, c := range cases {
		if got := Classify(c.text); got != c.want {
			t.Fatalf("Classify(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestClassifyAdvancedBoundaryIsInclusive(t *testing.T) {
	// 7 个 5 字母词 + 3 个 6 字母词，平均词长恰好 5.3
	text := strings.Repeat("aaaaa ", 7) + strings.Repeat("bbbbbb ", 3)
	s := Analyze(text)
	if s.AvgWordLen != 5.3 || s.LongWordRatio != 0 {
		t.Fatalf("Analyze = %+v", s)
	}
	if got := Classify(text); got != Advanced {
		t.Fatalf("Classify at avg 5.3 = %s, want advanced", got)
	}
}

func TestClassifyIsPure(t *testing.T) {
	text := "Researchers published comprehensive findings about climate adaptation strategies."
	first := Classify(text)
	for i := 0; i < 10; i++ {
		if Classify(text) != first {
			t.Fatalf("Classify not deterministic")
		}
	}
}

func TestAnalyzeIgnoresPunctuation(t *testing.T) {
	s := Analyze(`"Hello," she said -- "goodbye!"`)
	if s.Words != 4 {
		t.Fatalf("Words = %d, want 4", s.Words)
	}
}

func TestKeyVocabularyOrdering(t *testing.T) {
	text := "Scientists discovered ancient fossils. Scientists said the fossils were ancient remains."
	if got := KeyVocabulary(text, 3); got != "ancient, fossils, scientists" {
		t.Fatalf("KeyVocabulary = %q", got)
	}
	if got := KeyVocabulary(text, 0); got != "" {
		t.Fatalf("KeyVocabulary(n=0) = %q", got)
	}
}

func TestProcessorProcess(t *testing.T) {
	p := NewProcessor()
	out := p.Process(Raw{
		Title:   "  Big &amp; bold\n news ",
		Content: "Officials confirmed the plan on Monday.  It starts next week.",
		Summary: "<p>Lead <b>text</b></p>",
	})

	if out.Title != "Big & bold news" {
		t.Fatalf("Title = %q", out.Title)
	}
	if out.Summary != "Lead text" {
		t.Fatalf("Summary = %q", out.Summary)
	}
	if out.WordCount != 10 {
		t.Fatalf("WordCount = %d, want 10", out.WordCount)
	}
	if out.ReadingTimeMinutes != 1 {
		t.Fatalf("ReadingTimeMinutes = %d", out.ReadingTimeMinutes)
	}
	if !out.Difficulty.Valid() {
		t.Fatalf("invalid difficulty %q", out.Difficulty)
	}

	derived := p.Process(Raw{Title: "t", Content: "One sentence only. Another."})
	if derived.Summary != "One sentence only." {
		t.Fatalf("derived summary = %q", derived.Summary)
	}
}
