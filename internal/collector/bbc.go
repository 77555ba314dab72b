package collector

// BBCSpec BBC News 世界、科技、科学频道
var BBCSpec = Spec{
	Name: "BBC",
	Feeds: []string{
		"https://feeds.bbci.co.uk/news/world/rss.xml",
		"https://feeds.bbci.co.uk/news/technology/rss.xml",
		"https://feeds.bbci.co.uk/news/science_and_environment/rss.xml",
	},
	Selectors: []string{
		`article [data-component="text-block"]`,
		`div[data-component="text-block"]`,
		".story-body__inner",
		"article",
	},
}

func NewBBC(d Deps) *Adapter { return NewAdapter(BBCSpec, d) }
