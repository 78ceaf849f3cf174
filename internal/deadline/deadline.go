// Package deadline resolves legal response periods into concrete dates.
// Brazilian procedure counts deadlines either in calendar days ("corridos")
// or in business days ("úteis", CPC/2015 art. 219, weekends excluded).
package deadline

import (
	"time"

	"github.com/mpontes/lexgate/internal/task"
)

const dateLayout = "2006-01-02"

// ApplyDates fills the analysis' deadline StartDate/EndDate in place, counting
// from now. A missing deadline block, a non-positive day count, or an unknown
// counting rule leaves the analysis untouched.
func ApplyDates(a *task.Analysis, now time.Time) {
	if a == nil || a.Deadline == nil || a.Deadline.Days <= 0 {
		return
	}

	start := now
	var end time.Time
	switch a.Deadline.Type {
	case task.DeadlineCorridos:
		end = start.AddDate(0, 0, a.Deadline.Days)
	case task.DeadlineUteis:
		end = addBusinessDays(start, a.Deadline.Days)
	default:
		return
	}

	a.Deadline.StartDate = start.Format(dateLayout)
	a.Deadline.EndDate = end.Format(dateLayout)
}

func addBusinessDays(from time.Time, days int) time.Time {
	d := from
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return d
}
