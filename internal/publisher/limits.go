package publisher

import (
	"time"

	"github.com/xkilldash9x/autonote/api/schemas"
)

// EvaluatePostingLimit applies the one-post-per-calendar-day policy. Entries count when
// their date falls on the same calendar day as today, in today's location. Entries without
// a parsed date never count.
func EvaluatePostingLimit(entries []schemas.ArticleEntry, today time.Time) schemas.PostingLimitCheck {
	recent := entries
	if recent == nil {
		recent = []schemas.ArticleEntry{}
	}

	count := 0
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		if sameDay(e.Date.In(today.Location()), today) {
			count++
		}
	}

	return schemas.PostingLimitCheck{
		CanPost:        count == 0,
		TodayPostCount: count,
		RecentArticles: recent,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
