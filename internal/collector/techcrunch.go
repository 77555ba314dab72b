package collector

var TechCrunchSpec = Spec{
	Name:  "TechCrunch",
	Feeds: []string{"https://techcrunch.com/feed/"},
	Selectors: []string{
		".wp-block-post-content",
		".article-content",
		"article",
	},
}

func NewTechCrunch(d Deps) *Adapter { return NewAdapter(TechCrunchSpec, d) }
