package collector

// NPRSpec NPR 新闻与科学
var NPRSpec = Spec{
	Name: "NPR",
	Feeds: []string{
		"https://feeds.npr.org/1001/rss.xml",
		"https://feeds.npr.org/1007/rss.xml",
	},
	Selectors: []string{
		"#storytext",
		".storytext",
		"article",
	},
}

func NewNPR(d Deps) *Adapter { return NewAdapter(NPRSpec, d) }
