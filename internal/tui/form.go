package tui

import (
	"fmt"
	"strings"
	"time"

	"daygrid/internal/model"
	"daygrid/internal/store"
)

type formField struct {
	Label string
	Value string
}

const (
	fieldTitle = iota
	fieldPriority
	fieldDue
)

func buildFormFields(task *model.Task) []formField {
	fields := []formField{
		{Label: "Title"},
		{Label: "Priority (space/←→)"},
		{Label: "Due (YYYY-MM-DD)"},
	}

	if task == nil {
		fields[fieldPriority].Value = "medium"
		return fields
	}

	fields[fieldTitle].Value = task.Title
	fields[fieldPriority].Value = task.Priority.String()
	if task.DueAt != nil {
		fields[fieldDue].Value = task.DueAt.Format("2006-01-02")
	}

	return fields
}

func parseFormFields(fields []formField) (store.TaskInput, error) {
	title := strings.TrimSpace(fields[fieldTitle].Value)
	if title == "" {
		return store.TaskInput{}, fmt.Errorf("title is required")
	}

	priority, err := model.ParsePriority(fields[fieldPriority].Value)
	if err != nil {
		return store.TaskInput{}, err
	}

	dueAt, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return store.TaskInput{}, err
	}

	return store.TaskInput{Title: title, Priority: priority, DueAt: dueAt}, nil
}

func parseDue(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid due date")
	}
	return &parsed, nil
}

func isPriorityField(label string) bool {
	return strings.HasPrefix(label, "Priority")
}

func nextPriority(current string) string {
	return cyclePriority(current, 1)
}

func prevPriority(current string) string {
	return cyclePriority(current, -1)
}

func cyclePriority(current string, delta int) string {
	order := []string{"low", "medium", "high"}
	value := strings.TrimSpace(strings.ToLower(current))
	index := 0
	for i, name := range order {
		if name == value {
			index = i
			break
		}
	}
	index = (index + delta + len(order)) % len(order)
	return order[index]
}
