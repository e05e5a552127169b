package model

import (
	"fmt"
	"strings"
	"time"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Priorities lists all priorities from highest to lowest, the order the
// UI presents them in.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func ParsePriority(value string) (Priority, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityLow, fmt.Errorf("invalid priority %q", value)
}

type Task struct {
	ID        string
	Title     string
	Completed bool
	Priority  Priority
	DueAt     *time.Time
	CreatedAt time.Time
}

// Overdue is derived, never stored: past due and still open.
func (t Task) Overdue(now time.Time) bool {
	return t.DueAt != nil && t.DueAt.Before(now) && !t.Completed
}
