// Package progress derives completion statistics from collections of
// annotated tasks. Read-only: nothing here mutates a task.
package progress

import "github.com/hanlabel/kdpii/core/span"

// Stats summarizes completion state over a set of tasks.
type Stats struct {
	// Total is the number of tasks.
	Total int `json:"total"`

	// Completed, Pending, and InProgress partition Total by status.
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`

	// PerLabel counts spans by label code across all tasks, regardless of
	// task status.
	PerLabel map[string]int `json:"per_label_counts"`
}

// CompletionPercent returns the completed share of tasks as a percentage.
// Zero tasks yields zero.
func (s Stats) CompletionPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Completion computes statistics over tasks. Pure function: no side
// effects, no ordering requirement on input. An empty status counts as
// pending, matching the codecs' default.
func Completion(tasks []*span.AnnotatedTask) Stats {
	stats := Stats{PerLabel: make(map[string]int)}
	for _, t := range tasks {
		stats.Total++
		switch t.Status {
		case span.StatusCompleted:
			stats.Completed++
		case span.StatusInProgress:
			stats.InProgress++
		default:
			stats.Pending++
		}
		for _, s := range t.Spans {
			stats.PerLabel[s.LabelCode]++
		}
	}
	return stats
}
