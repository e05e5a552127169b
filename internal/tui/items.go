package tui

import (
	"fmt"
	"strings"
	"time"

	"daygrid/internal/buckets"
	"daygrid/internal/calendar"
	"daygrid/internal/model"
)

// buildColumns turns a snapshot into one row list per priority: active
// tasks first (due-date ordered), completed tasks after them.
func buildColumns(tasks []model.Task) map[model.Priority][]model.Task {
	partition := buckets.Partition(tasks)

	columns := make(map[model.Priority][]model.Task, len(model.Priorities))
	for _, priority := range model.Priorities {
		rows := make([]model.Task, 0, len(partition.Active(priority))+len(partition.Completed(priority)))
		rows = append(rows, partition.Active(priority)...)
		rows = append(rows, partition.Completed(priority)...)
		columns[priority] = rows
	}
	return columns
}

func formatTaskLine(task model.Task, now time.Time) string {
	marker := "[ ]"
	if task.Completed {
		marker = "[x]"
	}

	line := fmt.Sprintf("%s %s", marker, task.Title)
	if task.DueAt != nil {
		line += " (" + task.DueAt.Format("Jan 2") + ")"
	}
	if task.Overdue(now) {
		line += " !"
	}
	return line
}

// calendarLines renders a month as text: title, weekday header, six
// week rows. Days with open tasks due are marked with an asterisk.
func calendarLines(month time.Time, tasks []model.Task) []string {
	byDay := calendar.GroupByDay(tasks)
	days := calendar.Days(month)

	lines := []string{month.Format("January 2006"), "Su  Mo  Tu  We  Th  Fr  Sa"}
	for week := 0; week < len(days)/7; week++ {
		cells := make([]string, 0, 7)
		for i := week * 7; i < (week+1)*7; i++ {
			day := days[i]
			cell := fmt.Sprintf("%2d", day.Day())
			if day.Month() != month.Month() {
				cell = " ·"
			}
			if len(byDay[calendar.DateKey(day)]) > 0 {
				cell += "*"
			} else {
				cell += " "
			}
			cells = append(cells, cell)
		}
		lines = append(lines, strings.Join(cells, " "))
	}
	return lines
}

// dueThisMonth lists the open tasks due inside the shown month, day
// ordered, for the panel below the grid.
func dueThisMonth(month time.Time, tasks []model.Task) []string {
	byDay := calendar.GroupByDay(tasks)
	days := calendar.Days(month)

	var entries []string
	for _, day := range days {
		if day.Month() != month.Month() {
			continue
		}
		for _, task := range byDay[calendar.DateKey(day)] {
			entries = append(entries, fmt.Sprintf("%s %s", day.Format("02"), task.Title))
		}
	}
	return entries
}
