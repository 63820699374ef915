package views

import (
	"sort"

	"github.com/tgienger/taskdemo/internal/models"
)

// SortKey names a sortable task column
type SortKey string

const (
	SortDueDate   SortKey = "dueDate"
	SortPriority  SortKey = "priority"
	SortStatus    SortKey = "status"
	SortCreatedAt SortKey = "createdAt"
)

// SortDir is a sort direction
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// SortConfig selects a column and direction. The zero value means unsorted.
type SortConfig struct {
	Key SortKey `json:"key,omitempty"`
	Dir SortDir `json:"dir,omitempty"`
}

// IsZero reports whether no sort is applied
func (c SortConfig) IsZero() bool { return c.Key == "" }

var priorityRank = map[models.Priority]int{
	models.PriorityUrgent: 0,
	models.PriorityHigh:   1,
	models.PriorityMedium: 2,
	models.PriorityLow:    3,
}

var statusRank = map[models.Status]int{
	models.StatusOverdue:    0,
	models.StatusInProgress: 1,
	models.StatusNotStarted: 2,
	models.StatusDone:       3,
}

// PriorityRank orders priorities most urgent first. Unknown values sort last.
func PriorityRank(p models.Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// StatusRank orders statuses overdue first, done last
func StatusRank(s models.Status) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// NextSort cycles a column through ascending, descending and unsorted
func NextSort(current SortConfig, key SortKey) SortConfig {
	if current.Key != key {
		return SortConfig{Key: key, Dir: Asc}
	}
	if current.Dir == Asc {
		return SortConfig{Key: key, Dir: Desc}
	}
	return SortConfig{}
}

// SortTasks returns a sorted copy of tasks. Tasks without a due date stay
// last in both directions.
func SortTasks(tasks []models.Task, cfg SortConfig) []models.Task {
	if cfg.IsZero() {
		return tasks
	}

	sorted := make([]models.Task, len(tasks))
	copy(sorted, tasks)

	mult := 1
	if cfg.Dir == Desc {
		mult = -1
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch cfg.Key {
		case SortDueDate:
			if a.DueDate == nil || b.DueDate == nil {
				return a.DueDate != nil && b.DueDate == nil
			}
			return compareTime(*a.DueDate, *b.DueDate)*mult < 0
		case SortPriority:
			return (PriorityRank(a.Priority)-PriorityRank(b.Priority))*mult < 0
		case SortStatus:
			return (StatusRank(a.Status)-StatusRank(b.Status))*mult < 0
		case SortCreatedAt:
			return compareTime(a.CreatedAt, b.CreatedAt)*mult < 0
		}
		return false
	})
	return sorted
}
