package collector

import "strings"

// CNNSpec CNN 国际版
var CNNSpec = Spec{
	Name: "CNN",
	Feeds: []string{
		"http://rss.cnn.com/rss/edition_world.rss",
		"http://rss.cnn.com/rss/edition_technology.rss",
	},
	Selectors: []string{
		".article__content",
		".zn-body__paragraph",
		"section.body-text",
		"article",
	},
	NormalizeURL: cnnNormalizeURL,
}

// cnnNormalizeURL 同一篇文章常以 /index.html 结尾出现，去掉后再去重
func cnnNormalizeURL(u string) string {
	return strings.TrimSuffix(u, "/index.html")
}

func NewCNN(d Deps) *Adapter { return NewAdapter(CNNSpec, d) }
