package buckets

import (
	"testing"
	"time"

	"daygrid/internal/model"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	value := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &value
}

func TestPartitionIsTotalAndDisjoint(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Priority: model.PriorityHigh},
		{ID: "2", Priority: model.PriorityHigh, Completed: true},
		{ID: "3", Priority: model.PriorityMedium},
		{ID: "4", Priority: model.PriorityLow, Completed: true},
		{ID: "5", Priority: model.PriorityLow},
		{ID: "6", Priority: model.PriorityMedium, Completed: true},
		{ID: "7", Priority: model.PriorityHigh},
	}

	partition := Partition(tasks)

	if partition.Len() != len(tasks) {
		t.Fatalf("expected %d tasks across cells, got %d", len(tasks), partition.Len())
	}

	seen := make(map[string]int)
	for _, priority := range model.Priorities {
		for _, task := range partition.Active(priority) {
			if task.Priority != priority || task.Completed {
				t.Fatalf("task %s is in the wrong cell (%s/active)", task.ID, priority)
			}
			seen[task.ID]++
		}
		for _, task := range partition.Completed(priority) {
			if task.Priority != priority || !task.Completed {
				t.Fatalf("task %s is in the wrong cell (%s/completed)", task.ID, priority)
			}
			seen[task.ID]++
		}
	}

	if len(seen) != len(tasks) {
		t.Fatalf("expected all %d tasks exactly once, got %d distinct", len(tasks), len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("task %s appears in %d cells", id, count)
		}
	}
}

func TestPartitionOrdersCellsByDueDate(t *testing.T) {
	tasks := []model.Task{
		{ID: "undated-1", Priority: model.PriorityHigh},
		{ID: "late", Priority: model.PriorityHigh, DueAt: datePtr(2024, time.June, 20)},
		{ID: "early", Priority: model.PriorityHigh, DueAt: datePtr(2024, time.June, 1)},
		{ID: "undated-2", Priority: model.PriorityHigh},
		{ID: "mid", Priority: model.PriorityHigh, DueAt: datePtr(2024, time.June, 10)},
	}

	active := Partition(tasks).Active(model.PriorityHigh)

	want := []string{"early", "mid", "late", "undated-1", "undated-2"}
	if len(active) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(active))
	}
	for i, id := range want {
		if active[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, active[i].ID)
		}
	}
}

func TestPartitionEmptyCollection(t *testing.T) {
	partition := Partition(nil)
	if partition.Len() != 0 {
		t.Fatalf("expected empty partition, got %d tasks", partition.Len())
	}
	for _, priority := range model.Priorities {
		if len(partition.Active(priority)) != 0 || len(partition.Completed(priority)) != 0 {
			t.Fatalf("expected empty cells for %s", priority)
		}
	}
}

func TestLessByDue(t *testing.T) {
	d1 := model.Task{ID: "d1", DueAt: datePtr(2024, time.June, 1)}
	d2 := model.Task{ID: "d2", DueAt: datePtr(2024, time.June, 10)}
	d3 := model.Task{ID: "d3", DueAt: datePtr(2024, time.June, 20)}
	u1 := model.Task{ID: "u1"}
	u2 := model.Task{ID: "u2"}

	if !LessByDue(d1, d2) || LessByDue(d2, d1) {
		t.Fatalf("expected d1 < d2")
	}
	if !LessByDue(d1, d2) || !LessByDue(d2, d3) || !LessByDue(d1, d3) {
		t.Fatalf("expected ordering to be transitive across d1 < d2 < d3")
	}
	if !LessByDue(d3, u1) {
		t.Fatalf("expected dated to sort before undated")
	}
	if LessByDue(u1, d1) {
		t.Fatalf("expected undated not to sort before dated")
	}
	if LessByDue(u1, u2) || LessByDue(u2, u1) {
		t.Fatalf("expected two undated tasks to compare equal")
	}
	if LessByDue(d1, d1) {
		t.Fatalf("expected a task not to sort before itself")
	}
}
