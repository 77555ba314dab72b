package collector

var AlJazeeraSpec = Spec{
	Name:  "AlJazeera",
	Feeds: []string{"https://www.aljazeera.com/xml/rss/all.xml"},
	Selectors: []string{
		".wysiwyg",
		".article-p-wrapper",
		"main article",
	},
}

func NewAlJazeera(d Deps) *Adapter { return NewAdapter(AlJazeeraSpec, d) }
