package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/media"
	"github.com/LJTian/LingoNews/internal/persistor"
	"github.com/LJTian/LingoNews/internal/processor"
	"github.com/LJTian/LingoNews/internal/storage"
)

var floodJPEG = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 4096)...)

func storyPage(words int) string {
	return fmt.Sprintf(`<html><body><nav><p>Home World Sport Weather</p></nav>
<div class="story"><p>%s</p></div></body></html>`, strings.TrimSpace(strings.Repeat("reader ", words)))
}

// newNewsSite 一个 feed：80 词（带图片）、50 词、49 词三篇文章，第一篇在 feed 中出现两次
func newNewsSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/world.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>World</title>
<item><title>Rivers rise across the north</title><link>%[1]s/long</link>
<enclosure url="%[1]s/img/flood.jpg" type="image/jpeg" length="4107"/></item>
<item><title>City council approves new budget</title><link>%[1]s/w50</link></item>
<item><title>Mountain rescue teams train volunteers</title><link>%[1]s/w49</link></item>
<item><title>Rivers rise across the north</title><link>%[1]s/long</link></item>
</channel></rss>`, srv.URL)
	})
	page := func(words int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, storyPage(words))
		}
	}
	mux.HandleFunc("/long", page(80))
	mux.HandleFunc("/w50", page(50))
	mux.HandleFunc("/w49", page(49))
	mux.HandleFunc("/img/flood.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(floodJPEG)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type pipeline struct {
	store *storage.Store
	media *media.Manager
	coord *Coordinator
}

func newPipeline(t *testing.T, site *httptest.Server) *pipeline {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "news.db")), storage.GormConfig())
	require.NoError(t, err)
	store, err := storage.NewStore(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := fetcher.New(fetcher.Options{
		Timeout:      2 * time.Second,
		ImageTimeout: 2 * time.Second,
		RetryDelay:   time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	mm, err := media.NewManager(media.Options{
		Root:    t.TempDir(),
		Fetcher: f,
		Refs:    store.News,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	store.News.SetHooks(mm)

	adapter := collector.NewAdapter(collector.Spec{
		Name:      "Test",
		Feeds:     []string{site.URL + "/world.xml"},
		Selectors: []string{"div.story"},
	}, collector.Deps{
		Fetcher:   f,
		Processor: processor.NewProcessor(),
		MinWords:  50,
		Logger:    zerolog.Nop(),
		Now:       time.Now,
	})
	reg := collector.NewRegistry()
	reg.Register(config.ModeTraditional, adapter)

	p := persistor.New(store.News, mm, persistor.Options{
		MinWords:        50,
		RecentCap:       50,
		TitleSimEnabled: true,
		Logger:          zerolog.Nop(),
	})
	return &pipeline{
		store: store,
		media: mm,
		coord: NewCoordinator(reg, p, Options{Workers: 2, Logger: zerolog.Nop()}),
	}
}

func TestPipelineReportsEveryOutcome(t *testing.T) {
	site := newNewsSite(t)
	pl := newPipeline(t, site)
	ctx := context.Background()

	report, err := pl.coord.Run(ctx, request(10, "Test"))
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)

	sr := report.Sources[0]
	assert.Equal(t, "Test", sr.Source)
	assert.Equal(t, 3, sr.Attempted)
	assert.Equal(t, 2, sr.Yielded)
	assert.Equal(t, persistor.Counters{Saved: 2, DuplicateURL: 1, TooShort: 1}, sr.Outcomes)
	assert.Equal(t, 2, sr.Saved)
	assert.Equal(t, 2, sr.Skipped)
	assert.Equal(t, sr.Outcomes, report.Totals)
	assert.Equal(t, ExitOK, report.ExitCode())

	rerun, err := pl.coord.Run(ctx, request(10, "Test"))
	require.NoError(t, err)
	assert.Equal(t, persistor.Counters{DuplicateURL: 3, TooShort: 1}, rerun.Sources[0].Outcomes)

	rows, err := pl.store.News.List(ctx, storage.ListFilter{Source: "Test"})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "rerun leaves the store unchanged")
}

func TestPipelineImageLifecycle(t *testing.T) {
	site := newNewsSite(t)
	pl := newPipeline(t, site)
	ctx := context.Background()

	_, err := pl.coord.Run(ctx, request(10, "Test"))
	require.NoError(t, err)

	rows, err := pl.store.News.List(ctx, storage.ListFilter{Source: "Test"})
	require.NoError(t, err)

	var withImage *storage.News
	for i := range rows {
		if rows[i].SourceURL == site.URL+"/long" {
			withImage = &rows[i]
		}
	}
	require.NotNil(t, withImage)

	sum := sha256.Sum256(floodJPEG)
	hexSum := hex.EncodeToString(sum[:])
	assert.Equal(t, "news_images/"+hexSum[:2]+"/"+hexSum+".jpeg", withImage.ImageURL)
	assert.Equal(t, 80, withImage.WordCount)

	abs, err := pl.media.AbsPath(withImage.ImageURL)
	require.NoError(t, err)
	stored, err := os.ReadFile(abs)
	require.NoError(t, err)
	storedSum := sha256.Sum256(stored)
	assert.Equal(t, hexSum, hex.EncodeToString(storedSum[:]))

	require.NoError(t, pl.store.News.Delete(ctx, withImage.ID))
	assert.NoFileExists(t, abs)
}
