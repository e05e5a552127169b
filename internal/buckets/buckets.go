package buckets

import (
	"sort"

	"daygrid/internal/model"
)

// Buckets partitions a task collection into priority x completion
// cells. Every task lands in exactly one cell.
type Buckets struct {
	active    map[model.Priority][]model.Task
	completed map[model.Priority][]model.Task
}

// Partition splits tasks into the six cells and orders each cell with
// LessByDue. Cross-cell order is not defined.
func Partition(tasks []model.Task) Buckets {
	b := Buckets{
		active:    make(map[model.Priority][]model.Task),
		completed: make(map[model.Priority][]model.Task),
	}

	for _, task := range tasks {
		if task.Completed {
			b.completed[task.Priority] = append(b.completed[task.Priority], task)
		} else {
			b.active[task.Priority] = append(b.active[task.Priority], task)
		}
	}

	for _, cell := range []map[model.Priority][]model.Task{b.active, b.completed} {
		for priority := range cell {
			tasks := cell[priority]
			sort.SliceStable(tasks, func(i, j int) bool {
				return LessByDue(tasks[i], tasks[j])
			})
			cell[priority] = tasks
		}
	}

	return b
}

// Active returns the open tasks for a priority, due-date ordered.
func (b Buckets) Active(p model.Priority) []model.Task {
	return b.active[p]
}

// Completed returns the finished tasks for a priority, due-date ordered.
func (b Buckets) Completed(p model.Priority) []model.Task {
	return b.completed[p]
}

// Len reports the total number of tasks across all cells.
func (b Buckets) Len() int {
	total := 0
	for _, tasks := range b.active {
		total += len(tasks)
	}
	for _, tasks := range b.completed {
		total += len(tasks)
	}
	return total
}

// LessByDue orders dated tasks ascending and places undated tasks last.
// Two undated tasks compare equal, so a stable sort keeps their
// original relative order.
func LessByDue(a, b model.Task) bool {
	if a.DueAt != nil && b.DueAt != nil {
		return a.DueAt.Before(*b.DueAt)
	}
	return a.DueAt != nil && b.DueAt == nil
}
