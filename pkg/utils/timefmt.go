package utils

import "time"

const (
	clockLayout    = "03:04 PM"
	absoluteLayout = "Jan 02, 2006, 03:04 PM"
)

// FormatTimestamp renders an epoch-millisecond timestamp for display relative
// to now, in loc. A nil loc means UTC.
func FormatTimestamp(ts int64, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	t := time.UnixMilli(ts).In(loc)
	now = now.In(loc)

	switch {
	case sameDay(t, now):
		return "Today, " + t.Format(clockLayout)
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "Yesterday, " + t.Format(clockLayout)
	default:
		return t.Format(absoluteLayout)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
