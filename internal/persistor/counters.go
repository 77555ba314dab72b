package persistor

// Counters 按结果累计的计数
type Counters struct {
	Saved          int `json:"saved"`
	DuplicateURL   int `json:"duplicate_url"`
	DuplicateTitle int `json:"duplicate_title"`
	TooShort       int `json:"too_short"`
	RecentCap      int `json:"recent_cap"`
	DryRun         int `json:"dry_run"`
	Errors         int `json:"errors"`
}

func (c *Counters) Add(o Outcome) {
	switch o {
	case OutcomeSaved:
		c.Saved++
	case OutcomeDuplicateURL:
		c.DuplicateURL++
	case OutcomeDuplicateTitle:
		c.DuplicateTitle++
	case OutcomeTooShort:
		c.TooShort++
	case OutcomeRecentCap:
		c.RecentCap++
	case OutcomeDryRun:
		c.DryRun++
	default:
		c.Errors++
	}
}

// Merge 累加另一组计数
func (c *Counters) Merge(o Counters) {
	c.Saved += o.Saved
	c.DuplicateURL += o.DuplicateURL
	c.DuplicateTitle += o.DuplicateTitle
	c.TooShort += o.TooShort
	c.RecentCap += o.RecentCap
	c.DryRun += o.DryRun
	c.Errors += o.Errors
}

// Skipped 被闸门拦下的条目数
func (c Counters) Skipped() int {
	return c.DuplicateURL + c.DuplicateTitle + c.TooShort + c.RecentCap + c.DryRun
}
