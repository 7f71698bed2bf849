// internal/publisher/dates_test.go
package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autonote/internal/config"
)

func TestParseEntryDate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, tokyo)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, tokyo) }

	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2024年5月9日", day(2024, time.May, 9), true},
		{"2024年05月09日", day(2024, time.May, 9), true},
		{"2024/05/09", day(2024, time.May, 9), true},
		{"2024-05-09", day(2024, time.May, 9), true},
		{"2024.5.9", day(2024, time.May, 9), true},
		{"May 9, 2024", day(2024, time.May, 9), true},
		{" 2024/5/9 ", day(2024, time.May, 9), true},
		{"2024年5月9日 18:45", time.Date(2024, time.May, 9, 18, 45, 0, 0, tokyo), true},
		{"3時間前", now.Add(-3 * time.Hour), true},
		{"15分前", now.Add(-15 * time.Minute), true},
		{"2日前", now.AddDate(0, 0, -2), true},
		{"昨日", now.AddDate(0, 0, -1), true},
		{"たった今", now, true},
		{"", time.Time{}, false},
		{"いつか", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseEntryDate(tt.raw, now)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestParseArticleList(t *testing.T) {
	note := config.NewDefaultConfig().Note
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Empty page", func(t *testing.T) {
		entries, err := parseArticleList("<body><p>まだ記事がありません</p></body>", note, 5, now)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("Missing date keeps entry", func(t *testing.T) {
		html := `<div class="p-noteList-item"><a href="/u/n/1"><h3 class="p-noteList-title">記事</h3></a></div>`
		entries, err := parseArticleList(html, note, 5, now)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "https://note.com/u/n/1", entries[0].URL)
		assert.True(t, entries[0].Date.IsZero())
	})
}
