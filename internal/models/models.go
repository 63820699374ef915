package models

import (
	"fmt"
	"time"
)

// Priority is the urgency of a task
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every priority from least to most urgent
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Status is the progress state of a task
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOverdue    Status = "OVERDUE"
	StatusDone       Status = "DONE"
)

// Statuses lists every status in workflow order
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusOverdue, StatusDone}

var priorityLabels = map[Priority]string{
	PriorityLow:    "Low",
	PriorityMedium: "Medium",
	PriorityHigh:   "High",
	PriorityUrgent: "Urgent",
}

var statusLabels = map[Status]string{
	StatusNotStarted: "Not started",
	StatusInProgress: "In progress",
	StatusOverdue:    "Overdue",
	StatusDone:       "Done",
}

// Label returns the display label for the priority
func (p Priority) Label() string { return priorityLabels[p] }

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	_, ok := priorityLabels[p]
	return ok
}

// Next returns the following priority, wrapping back to LOW after URGENT
func (p Priority) Next() Priority {
	for i, v := range Priorities {
		if v == p {
			return Priorities[(i+1)%len(Priorities)]
		}
	}
	return PriorityLow
}

// Label returns the display label for the status
func (s Status) Label() string { return statusLabels[s] }

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Next returns the following status, wrapping back to NOT_STARTED after DONE
func (s Status) Next() Status {
	for i, v := range Statuses {
		if v == s {
			return Statuses[(i+1)%len(Statuses)]
		}
	}
	return StatusNotStarted
}

// ParsePriority converts a raw string into a Priority
func ParsePriority(raw string) (Priority, error) {
	p := Priority(raw)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", raw)
	}
	return p, nil
}

// ParseStatus converts a raw string into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Session is one sandboxed demo visitor and its lifetime usage counters
type Session struct {
	ID              string     `json:"id"`
	TaskCreateCount int        `json:"taskCreateCount"`
	TaskUpdateCount int        `json:"taskUpdateCount"`
	TagCreateCount  int        `json:"tagCreateCount"`
	TagUpdateCount  int        `json:"tagUpdateCount"`
	SeededAt        *time.Time `json:"seededAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Tag is a colored label owned by a session
type Tag struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagUsage is a tag together with the number of tasks referencing it
type TagUsage struct {
	Tag
	UsageCount int `json:"usageCount"`
}

// Task represents a single task owned by a session
type Task struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Tags        []Tag      `json:"tags"` // populated when loading tasks
}

// HasTag reports whether the task carries the tag with the given id
func (t Task) HasTag(tagID string) bool {
	for _, tag := range t.Tags {
		if tag.ID == tagID {
			return true
		}
	}
	return false
}

// TagIDs returns the ids of the task's tags
func (t Task) TagIDs() []string {
	ids := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		ids = append(ids, tag.ID)
	}
	return ids
}
