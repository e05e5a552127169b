package calendar

import (
	"sort"
	"time"

	"daygrid/internal/model"
)

// GridCells is the fixed grid length: six full weeks, Sunday through
// Saturday. Every month fits, and the layout height never jumps when
// navigating between months.
const GridCells = 42

const dateKeyLayout = "2006-01-02"

// Days returns the 42 cell dates for the month containing ref. The grid
// starts on the Sunday on or before the 1st and is padded with
// adjacent-month days at both ends.
func Days(ref time.Time) []time.Time {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	start := first.AddDate(0, 0, -int(first.Weekday()))

	days := make([]time.Time, 0, GridCells)
	for i := 0; i < GridCells; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days
}

// DateKey collapses a point in time to its calendar day.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// GroupByDay buckets open, dated tasks under their due day. Completed
// and undated tasks are excluded. Within a day tasks are ordered by
// creation time, then ID.
func GroupByDay(tasks []model.Task) map[string][]model.Task {
	grouped := make(map[string][]model.Task)
	for _, task := range tasks {
		if task.Completed || task.DueAt == nil {
			continue
		}
		key := DateKey(*task.DueAt)
		grouped[key] = append(grouped[key], task)
	}

	for key := range grouped {
		day := grouped[key]
		sort.SliceStable(day, func(i, j int) bool {
			if !day[i].CreatedAt.Equal(day[j].CreatedAt) {
				return day[i].CreatedAt.Before(day[j].CreatedAt)
			}
			return day[i].ID < day[j].ID
		})
		grouped[key] = day
	}

	return grouped
}
