// internal/publisher/limits_test.go
package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/autonote/api/schemas"
)

func TestEvaluatePostingLimit(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	today := time.Date(2024, time.May, 10, 21, 0, 0, 0, tokyo)

	t.Run("TodayAndYesterday", func(t *testing.T) {
		entries := []schemas.ArticleEntry{
			{Title: "today", Date: today.Add(-2 * time.Hour)},
			{Title: "yesterday", Date: today.AddDate(0, 0, -1)},
		}
		check := EvaluatePostingLimit(entries, today)
		assert.False(t, check.CanPost)
		assert.Equal(t, 1, check.TodayPostCount)
		assert.Equal(t, entries, check.RecentArticles)
	})

	t.Run("Empty", func(t *testing.T) {
		check := EvaluatePostingLimit(nil, today)
		assert.True(t, check.CanPost)
		assert.Zero(t, check.TodayPostCount)
		assert.NotNil(t, check.RecentArticles)
	})

	t.Run("CalendarDayNotRollingWindow", func(t *testing.T) {
		// Three hours ago but before midnight.
		late := time.Date(2024, time.May, 10, 1, 0, 0, 0, tokyo)
		entries := []schemas.ArticleEntry{{Title: "late", Date: late.Add(-3 * time.Hour)}}
		check := EvaluatePostingLimit(entries, late)
		assert.True(t, check.CanPost)
	})

	t.Run("ComparesInTodaysLocation", func(t *testing.T) {
		// 2024-05-09 16:00 UTC is 2024-05-10 01:00 in Tokyo.
		entries := []schemas.ArticleEntry{{Date: time.Date(2024, time.May, 9, 16, 0, 0, 0, time.UTC)}}
		check := EvaluatePostingLimit(entries, today)
		assert.Equal(t, 1, check.TodayPostCount)
	})

	t.Run("UnparsedDatesNeverCount", func(t *testing.T) {
		entries := []schemas.ArticleEntry{{Title: "unknown", RawDate: "???"}}
		check := EvaluatePostingLimit(entries, today)
		assert.True(t, check.CanPost)
		assert.Len(t, check.RecentArticles, 1)
	})
}
