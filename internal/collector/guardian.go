package collector

// GuardianSpec The Guardian 世界、科学、科技频道
var GuardianSpec = Spec{
	Name: "Guardian",
	Feeds: []string{
		"https://www.theguardian.com/world/rss",
		"https://www.theguardian.com/science/rss",
		"https://www.theguardian.com/technology/rss",
	},
	Selectors: []string{
		`[data-gu-name="body"]`,
		".article-body-commercial-selector",
		".content__article-body",
		"article",
	},
}

func NewGuardian(d Deps) *Adapter { return NewAdapter(GuardianSpec, d) }
