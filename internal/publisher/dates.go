package publisher

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// entryDateLayouts are the absolute formats the account list has been seen to render.
var entryDateLayouts = []string{
	"2006年1月2日 15:04",
	"2006年1月2日",
	"2006/1/2 15:04",
	"2006/1/2",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.1.2",
	time.RFC3339,
	"Jan 2, 2006",
	"January 2, 2006",
}

var relativeDate = regexp.MustCompile(`^(\d+)\s*(秒|分|時間|日)前$`)

// parseEntryDate interprets a rendered list date relative to now. Relative forms such as
// "3時間前" and "昨日" are resolved against now; absolute dates are read in now's location.
func parseEntryDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	switch s {
	case "たった今", "今日":
		return now, true
	case "昨日":
		return now.AddDate(0, 0, -1), true
	}

	if m := relativeDate.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "秒":
			return now.Add(-time.Duration(n) * time.Second), true
		case "分":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "時間":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "日":
			return now.AddDate(0, 0, -n), true
		}
	}

	for _, layout := range entryDateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
