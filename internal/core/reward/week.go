package reward

import (
	"fmt"
	"time"
)

// WeekID derives the season-week identifier for a completion time, e.g.
// "2026-W35". ISO weeks keep week boundaries stable across year ends.
func WeekID(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
