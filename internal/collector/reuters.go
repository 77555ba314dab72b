package collector

// ReutersSpec Reuters 世界与科技
var ReutersSpec = Spec{
	Name: "Reuters",
	Feeds: []string{
		"https://www.reutersagency.com/feed/?best-topics=political-general&post_type=best",
		"https://www.reutersagency.com/feed/?best-topics=tech&post_type=best",
	},
	Selectors: []string{
		`[data-testid="paragraph-0"]`,
		`div[class^="article-body__content"]`,
		".StandardArticleBody_body",
		"article",
	},
}

func NewReuters(d Deps) *Adapter { return NewAdapter(ReutersSpec, d) }
