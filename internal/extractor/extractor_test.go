package extractor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storyPage = `<html><head><title>t</title></head><body>
<nav><p>Home News Sport Weather Navigation links</p></nav>
<div class="story">
  <script>var tracking = "this should never appear";</script>
  <img src="https://track.example.com/p.gif" width="1" height="1">
  <img src="data:image/gif;base64,R0lGOD" data-src="/images/lazy.jpg">
  <img src="/images/main.jpg" alt="  Rescue   workers at the scene ">
  <p>Short.</p>
  <p>The first   paragraph of the story
     spans several lines.</p>
  <aside><p>Related: another story entirely</p></aside>
  <p>The second paragraph has more detail &amp; context.</p>
</div>
</body></html>`

func TestExtractSelectorCascade(t *testing.T) {
	res, err := Extract([]byte(storyPage), "https://news.example.com/world/1", []string{"article .body", "div.story", "main"})
	require.NoError(t, err)

	assert.Equal(t, "div.story", res.Selector)
	assert.Equal(t,
		"The first paragraph of the story spans several lines. The second paragraph has more detail & context.",
		res.Content)
	assert.NotContains(t, res.Content, "tracking")
	assert.NotContains(t, res.Content, "Related")
	assert.NotContains(t, res.Content, "Navigation")
}

func TestExtractPrefersImageWithAlt(t *testing.T) {
	res, err := Extract([]byte(storyPage), "https://news.example.com/world/1", []string{"div.story"})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/images/main.jpg", res.ImageURL)
	assert.Equal(t, "Rescue workers at the scene", res.ImageAlt)
}

func TestExtractFallsBackToFirstImageWithoutAlt(t *testing.T) {
	page := `<html><body><div class="story">
<img src="data:image/png;base64,AAAA" data-src="/a.jpg">
<img srcset="/b-small.jpg 480w, /b-large.jpg 1024w">
<p>Enough words in this paragraph to keep it.</p>
</div></body></html>`

	res, err := Extract([]byte(page), "https://news.example.com/x", []string{"div.story"})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/a.jpg", res.ImageURL)
	assert.Empty(t, res.ImageAlt)
}

func TestExtractIgnoresImagesOutsideBody(t *testing.T) {
	page := `<html><body>
<header><img src="/logo.png" alt="Logo"></header>
<div class="story"><p>Body text without any picture in it.</p></div>
</body></html>`

	res, err := Extract([]byte(page), "https://news.example.com/x", []string{"div.story"})
	require.NoError(t, err)
	assert.Empty(t, res.ImageURL)
}

func TestExtractElementTextWithoutParagraphs(t *testing.T) {
	page := `<html><body><div class="story-text">Plain text body
with a line break and no paragraph tags.</div></body></html>`

	res, err := Extract([]byte(page), "https://news.example.com/x", []string{".story-text"})
	require.NoError(t, err)
	assert.Equal(t, "Plain text body with a line break and no paragraph tags.", res.Content)
}

func TestExtractNestedMatchesNotDuplicated(t *testing.T) {
	page := `<html><body><div class="c"><div class="c"><p>Only once in the output please.</p></div></div></body></html>`

	res, err := Extract([]byte(page), "https://news.example.com/x", []string{".c"})
	require.NoError(t, err)
	assert.Equal(t, "Only once in the output please.", res.Content)
}

func TestExtractNothingExtractable(t *testing.T) {
	page := `<html><body><div class="story"><p>tiny</p><script>x()</script></div></body></html>`

	_, err := Extract([]byte(page), "https://news.example.com/x", []string{"div.story"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNothingExtracted))

	var ee *ExtractError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, "https://news.example.com/x", ee.URL)
}

func TestExtractReadabilityFallback(t *testing.T) {
	para := "Officials said the new policy would change how schools across the region teach reading and writing to young children. "
	var b strings.Builder
	b.WriteString(`<html><head><title>Policy change</title></head><body><div id="wrap"><article>`)
	for i := 0; i < 8; i++ {
		b.WriteString("<p>")
		b.WriteString(strings.Repeat(para, 2))
		b.WriteString("</p>")
	}
	b.WriteString(`</article></div></body></html>`)

	res, err := Extract([]byte(b.String()), "https://news.example.com/policy", []string{".no-such-selector"})
	require.NoError(t, err)
	assert.Equal(t, "readability", res.Selector)
	assert.Contains(t, res.Content, "Officials said the new policy")
}

func TestExtractSkipsTrackingPixelsOnly(t *testing.T) {
	page := `<html><body><div class="story">
<img src="https://track.example.com/b/1x1.gif?id=9" alt="tracker">
<img src="/static/spacer.gif" alt="spacer">
<img src="/photos/2021x1080.jpg" alt="Crowds gather in the square">
<p>Enough words in this paragraph to keep it.</p>
</div></body></html>`

	res, err := Extract([]byte(page), "https://news.example.com/x", []string{"div.story"})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/photos/2021x1080.jpg", res.ImageURL)
	assert.Equal(t, "Crowds gather in the square", res.ImageAlt)
}
