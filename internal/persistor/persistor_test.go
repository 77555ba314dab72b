package persistor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/media"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/storage"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "news.db")), storage.GormConfig())
	require.NoError(t, err)
	s, err := storage.NewStore(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func defaultOptions() Options {
	return Options{
		MinWords:        50,
		RecentCap:       50,
		TitleSimEnabled: true,
		Now:             func() time.Time { return now },
		Logger:          zerolog.Nop(),
	}
}

func words(n int) string {
	vocab := []string{"the", "river", "city", "people", "said", "on", "monday", "that", "water", "levels"}
	out := make([]string, n)
	for i := range out {
		out[i] = vocab[i%len(vocab)]
	}
	return strings.Join(out, " ") + "."
}

func item(title, url string, wordCount int) collector.NewsItem {
	p := processor.NewProcessor().Process(processor.Raw{Title: title, Content: words(wordCount)})
	return collector.NewsItem{
		Title:              p.Title,
		Content:            p.Content,
		URL:                url,
		Source:             "BBC",
		PublishedAt:        now.Add(-time.Hour),
		Summary:            p.Summary,
		Difficulty:         p.Difficulty,
		WordCount:          p.WordCount,
		ReadingTimeMinutes: p.ReadingTimeMinutes,
		KeyVocabulary:      p.KeyVocabulary,
		Tags:               []string{"world"},
		Origin:             collector.OriginNative,
		ExtraData:          map[string]any{"selector": "article"},
	}
}

func count(t *testing.T, s *storage.Store) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB.Model(&storage.News{}).Count(&n).Error)
	return n
}

func run(ctx context.Context, p *Persistor, items []collector.NewsItem) Counters {
	var c Counters
	for _, it := range items {
		c.Add(p.Persist(ctx, it))
	}
	return c
}

func happyItems() []collector.NewsItem {
	return []collector.NewsItem{
		item("Rivers rise across the north", "https://www.bbc.co.uk/news/a?utm_source=rss", 100),
		item("Mountain rescue teams train volunteers", "https://www.bbc.co.uk/news/b", 200),
		item("City council approves new budget", "https://www.bbc.co.uk/news/c", 60),
	}
}

func TestPersistHappyPathAndRerun(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())
	ctx := context.Background()

	first := run(ctx, p, happyItems())
	assert.Equal(t, Counters{Saved: 3}, first)
	assert.EqualValues(t, 3, count(t, s))

	var rows []storage.News
	require.NoError(t, s.DB.Order("id").Find(&rows).Error)
	assert.Equal(t, "https://www.bbc.co.uk/news/a", rows[0].SourceURL, "tracking params stripped")
	for _, r := range rows {
		assert.Equal(t, processor.WordCount(r.Content), r.WordCount)
		assert.True(t, processor.Difficulty(r.DifficultyLevel).Valid())
		assert.Equal(t, "native", r.Origin)
	}

	second := run(ctx, p, happyItems())
	assert.Equal(t, Counters{DuplicateURL: 3}, second)
	assert.Equal(t, 3, second.Skipped())
	assert.EqualValues(t, 3, count(t, s))
}

func TestPersistDuplicateWithinRun(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())

	a := item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)
	c := run(context.Background(), p, []collector.NewsItem{a, a})
	assert.Equal(t, Counters{Saved: 1, DuplicateURL: 1}, c)
}

func TestPersistMinWordsBoundary(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())

	c := run(context.Background(), p, []collector.NewsItem{
		item("Forty nine words here", "https://www.bbc.co.uk/news/49", 49),
		item("Exactly fifty words there", "https://www.bbc.co.uk/news/50", 50),
	})
	assert.Equal(t, Counters{Saved: 1, TooShort: 1}, c)
}

func TestPersistTitleSimilarity(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())
	ctx := context.Background()

	require.Equal(t, OutcomeSaved, p.Persist(ctx, item("BBC News: Climate summit opens in Paris", "https://www.bbc.co.uk/news/1", 60)))
	assert.Equal(t, OutcomeDuplicateTitle, p.Persist(ctx, item("BBC News: Climate summit opens in Paris today", "https://www.bbc.co.uk/news/2", 60)))

	other := item("BBC News: Climate summit opens in Paris today", "https://www.bbc.co.uk/news/3", 60)
	other.Source = "Reuters"
	assert.Equal(t, OutcomeSaved, p.Persist(ctx, other), "similarity is scoped to a source")

	opts := defaultOptions()
	opts.TitleSimEnabled = false
	off := New(s.News, nil, opts)
	assert.Equal(t, OutcomeSaved, off.Persist(ctx, item("BBC News: Climate summit opens in Paris today", "https://www.bbc.co.uk/news/4", 60)))
}

func TestPersistRecentCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.News.Insert(ctx, &storage.News{
			Title:           fmt.Sprintf("Seeded story %d", i),
			Content:         words(60),
			SourceURL:       fmt.Sprintf("https://s.example.com/seed/%d", i),
			Source:          "S",
			PublishDate:     now,
			DifficultyLevel: "beginner",
		}))
	}

	p := New(s.News, nil, defaultOptions())
	var items []collector.NewsItem
	for i := 0; i < 5; i++ {
		it := item(fmt.Sprintf("Unrelated headline number %c", 'A'+i), fmt.Sprintf("https://s.example.com/new/%d", i), 60)
		it.Source = "S"
		it.PublishedAt = now
		items = append(items, it)
	}
	assert.Equal(t, Counters{RecentCap: 5}, run(ctx, p, items))

	old := items[0]
	old.URL = "https://s.example.com/archive/1"
	old.Title = "An archive piece from last year"
	old.PublishedAt = now.AddDate(-1, 0, 0)
	assert.Equal(t, OutcomeSaved, p.Persist(ctx, old), "cap only applies to recent publish dates")
}

func TestPersistDryRun(t *testing.T) {
	s := newTestStore(t)
	opts := defaultOptions()
	opts.DryRun = true
	p := New(s.News, nil, opts)

	c := run(context.Background(), p, []collector.NewsItem{
		item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80),
		item("Too short to keep", "https://www.bbc.co.uk/news/b", 10),
	})
	assert.Equal(t, Counters{DryRun: 1, TooShort: 1}, c)
	assert.EqualValues(t, 0, count(t, s))
}

func TestPersistCancelledBeforeWrite(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeError, p.Persist(ctx, item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)))
	assert.EqualValues(t, 0, count(t, s))
}

func TestPersistInvalidItem(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())

	bad := item("Rivers rise across the north", "not a url", 80)
	assert.Equal(t, OutcomeError, p.Persist(context.Background(), bad))
}

type imageFetcher struct {
	body []byte
}

func (f imageFetcher) Fetch(_ context.Context, url string, kind fetcher.Kind) (*fetcher.Response, error) {
	if strings.HasSuffix(url, "/missing.jpg") {
		return nil, &fetcher.FetchError{Kind: kind, URL: url, Status: 404}
	}
	return &fetcher.Response{Body: f.body, Status: 200, ContentType: "image/jpeg"}, nil
}

func TestPersistImageLifecycle(t *testing.T) {
	s := newTestStore(t)
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 4096)...)

	m, err := media.NewManager(media.Options{
		Root:    t.TempDir(),
		Fetcher: imageFetcher{body: jpeg},
		Refs:    s.News,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	s.News.SetHooks(m)

	p := New(s.News, m, defaultOptions())
	ctx := context.Background()

	withImage := item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)
	withImage.ImageURL = "https://ichef.bbci.co.uk/news/976/a.jpg"
	require.Equal(t, OutcomeSaved, p.Persist(ctx, withImage))

	var row storage.News
	require.NoError(t, s.DB.Where("source_url = ?", "https://www.bbc.co.uk/news/a").First(&row).Error)

	sum := sha256.Sum256(jpeg)
	hexSum := hex.EncodeToString(sum[:])
	assert.Equal(t, "news_images/"+hexSum[:2]+"/"+hexSum+".jpeg", row.ImageURL)

	abs, err := m.AbsPath(row.ImageURL)
	require.NoError(t, err)
	stored, err := os.ReadFile(abs)
	require.NoError(t, err)
	storedSum := sha256.Sum256(stored)
	assert.Equal(t, hexSum, hex.EncodeToString(storedSum[:]))

	broken := item("Mountain rescue teams train volunteers", "https://www.bbc.co.uk/news/b", 80)
	broken.ImageURL = "https://ichef.bbci.co.uk/news/missing.jpg"
	require.Equal(t, OutcomeSaved, p.Persist(ctx, broken))
	var brokenRow storage.News
	require.NoError(t, s.DB.Where("source_url = ?", "https://www.bbc.co.uk/news/b").First(&brokenRow).Error)
	assert.Equal(t, "https://ichef.bbci.co.uk/news/missing.jpg", brokenRow.ImageURL)

	require.NoError(t, s.News.Delete(ctx, row.ID))
	_, err = os.Stat(abs)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPersistSharedImageSurvivesDelete(t *testing.T) {
	s := newTestStore(t)
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE1}, make([]byte, 512)...)

	m, err := media.NewManager(media.Options{Root: t.TempDir(), Fetcher: imageFetcher{body: jpeg}, Refs: s.News, Logger: zerolog.Nop()})
	require.NoError(t, err)
	s.News.SetHooks(m)
	p := New(s.News, m, defaultOptions())
	ctx := context.Background()

	a := item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)
	a.ImageURL = "https://img.example.com/one.jpg"
	b := item("Mountain rescue teams train volunteers", "https://www.bbc.co.uk/news/b", 80)
	b.ImageURL = "https://img.example.com/two.jpg"
	require.Equal(t, OutcomeSaved, p.Persist(ctx, a))
	require.Equal(t, OutcomeSaved, p.Persist(ctx, b))

	var rows []storage.News
	require.NoError(t, s.DB.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, rows[0].ImageURL, rows[1].ImageURL)

	abs, err := m.AbsPath(rows[0].ImageURL)
	require.NoError(t, err)
	require.NoError(t, s.News.Delete(ctx, rows[0].ID))
	assert.FileExists(t, abs)
	require.NoError(t, s.News.Delete(ctx, rows[1].ID))
	assert.NoFileExists(t, abs)
}

func TestTitleRules(t *testing.T) {
	assert.Equal(t, "bbc news climate summit opens in paris", NormalizeTitle("BBC News: Climate summit  opens in Paris!"))

	assert.True(t, SimilarProportional("climate summit opens in paris", "climate summit opens in paris today"))
	assert.True(t, SimilarProportional("live world leaders meet in paris", "breaking world leaders meet in paris"))
	assert.False(t, SimilarProportional("rivers rise across the north", "mountain rescue teams train"))
	assert.False(t, SimilarProportional("", "anything"))

	assert.True(t, SimilarWindow("abcdefghij one", "abcdefghij two", 10))
	assert.False(t, SimilarWindow("short", "short", 10))
	assert.False(t, SimilarWindow("abcdefghij one", "zbcdefghij two", 10))
}

func TestWithDryRunLeavesOriginalWriting(t *testing.T) {
	s := newTestStore(t)
	p := New(s.News, nil, defaultOptions())
	ctx := context.Background()

	assert.Equal(t, OutcomeDryRun, p.WithDryRun().Persist(ctx, item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)))
	assert.Equal(t, OutcomeSaved, p.Persist(ctx, item("Rivers rise across the north", "https://www.bbc.co.uk/news/a", 80)))
}
