// Package views builds the read models shown for one session: the filtered
// task list, the dashboard buckets, reports, the calendar and recent activity.
package views

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/service"
)

const (
	maxQueryLength  = 120
	dueSoonWindow   = 7 * 24 * time.Hour
	completedWindow = 30
	completedShown  = 5
	activityLimit   = 30
	dayLayout       = "2006-01-02"
)

// ErrInvalidFilter is returned for task list filters that cannot be applied
var ErrInvalidFilter = errors.New("invalid filter")

var _ service.Invalidator = (*Cache)(nil)

// Filters narrows the task list
type Filters struct {
	Status models.Status `json:"status,omitempty"`
	TagID  string        `json:"tag,omitempty"`
	Query  string        `json:"q,omitempty"`
}

// TaskList is the filtered task list with the session's tags
type TaskList struct {
	Tasks        []models.Task         `json:"tasks"`
	Tags         []models.TagUsage     `json:"tags"`
	StatusCounts map[models.Status]int `json:"statusCounts"`
	Filters      Filters               `json:"filters"`
}

// Dashboard groups open work by urgency
type Dashboard struct {
	Overdue   []models.Task `json:"overdue"`
	DueSoon   []models.Task `json:"dueSoon"`
	Backlog   []models.Task `json:"backlog"`
	Completed []models.Task `json:"completed"`
	Tags      []models.Tag  `json:"tags"`
}

// Reports summarizes a session's tasks
type Reports struct {
	Total           int                     `json:"total"`
	ByStatus        map[models.Status]int   `json:"byStatus"`
	ByPriority      map[models.Priority]int `json:"byPriority"`
	TagUsage        []models.TagUsage       `json:"tagUsage"`
	CompletedRecent int                     `json:"completedLast30Days"`
	CompletedPerDay float64                 `json:"completedPerDay"`
	OverdueOpen     int                     `json:"overdueOpen"`
}

// CalendarDay is every task due on one day
type CalendarDay struct {
	Date  string        `json:"date"`
	Tasks []models.Task `json:"tasks"`
}

// Calendar lists tasks by due day, undated tasks last
type Calendar struct {
	Days    []CalendarDay `json:"days"`
	Undated []models.Task `json:"undated"`
}

// Activity is the most recently touched tasks
type Activity struct {
	Recent       []models.Task         `json:"recent"`
	StatusCounts map[models.Status]int `json:"statusCounts"`
	OverdueOpen  int                   `json:"overdueOpen"`
}

// Reader builds views from the store, caching them per session
type Reader struct {
	db    *db.DB
	cache *Cache

	// Now returns the current time. Tests may replace it.
	Now func() time.Time
}

// NewReader creates a Reader. cache may be nil.
func NewReader(database *db.DB, cache *Cache) *Reader {
	return &Reader{db: database, cache: cache, Now: time.Now}
}

// cached returns the cached value for key or builds and stores it
func cached[T any](r *Reader, key cacheKey, build func() (T, error)) (T, error) {
	if v, ok := r.cache.get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	started := r.cache.begin()
	t, err := build()
	if err != nil {
		return t, err
	}
	r.cache.put(key, t, started)
	return t, nil
}

// Normalize trims the query and checks the filter values
func (f Filters) Normalize() (Filters, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.TagID = strings.TrimSpace(f.TagID)
	if utf8.RuneCountInString(f.Query) > maxQueryLength {
		return f, fmt.Errorf("%w: search must be at most %d characters", ErrInvalidFilter, maxQueryLength)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	return f, nil
}

// TaskList returns the session's tasks matching filters, ordered by due date
// (undated last), then priority most urgent first, then newest first
func (r *Reader) TaskList(ctx context.Context, sessionID string, filters Filters) (*TaskList, error) {
	f, err := filters.Normalize()
	if err != nil {
		return nil, err
	}

	key := cacheKey{session: sessionID, scope: service.ScopeTasks, variant: string(f.Status) + "|" + f.TagID + "|" + f.Query}
	return cached(r, key, func() (*TaskList, error) {
		tasks, err := r.db.ListTasksFiltered(ctx, sessionID, db.TaskFilter{Status: f.Status, TagID: f.TagID, Search: f.Query})
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tags, err := r.db.ListTagUsage(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		counts, err := r.db.CountTasksByStatus(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("count tasks: %w", err)
		}

		sort.SliceStable(tasks, func(i, j int) bool {
			a, b := tasks[i], tasks[j]
			if c := compareDue(a, b); c != 0 {
				return c < 0
			}
			if pa, pb := PriorityRank(a.Priority), PriorityRank(b.Priority); pa != pb {
				return pa < pb
			}
			return a.CreatedAt.After(b.CreatedAt)
		})

		return &TaskList{Tasks: orEmpty(tasks), Tags: orEmpty(tags), StatusCounts: counts, Filters: f}, nil
	})
}

// Task returns one task of the session
func (r *Reader) Task(ctx context.Context, sessionID, id string) (*models.Task, error) {
	return r.db.GetTask(ctx, sessionID, id)
}

// Tags returns the session's tags with usage counts, most used first
func (r *Reader) Tags(ctx context.Context, sessionID string) ([]models.TagUsage, error) {
	return cached(r, cacheKey{session: sessionID, scope: service.ScopeTags}, func() ([]models.TagUsage, error) {
		tags, err := r.db.ListTagUsage(ctx, sessionID)
		return orEmpty(tags), err
	})
}

// Usage is how much of its alive capacity a session currently holds
type Usage struct {
	Tasks int `json:"tasks"`
	Tags  int `json:"tags"`
}

// Usage counts the session's live tasks and tags. It is never cached.
func (r *Reader) Usage(ctx context.Context, sessionID string) (*Usage, error) {
	tasks, err := r.db.CountTasks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	tags, err := r.db.CountTags(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}
	return &Usage{Tasks: tasks, Tags: tags}, nil
}

// Dashboard buckets the session's tasks. Done tasks are completed; open tasks
// due before now are overdue, due within seven days are due soon, and
// everything else is backlog.
func (r *Reader) Dashboard(ctx context.Context, sessionID string) (*Dashboard, error) {
	return cached(r, cacheKey{session: sessionID, scope: service.ScopeDashboard}, func() (*Dashboard, error) {
		tasks, err := r.db.ListTasks(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tags, err := r.db.ListTags(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		return BucketTasks(tasks, tags, r.Now()), nil
	})
}

// BucketTasks splits tasks into dashboard buckets relative to now
func BucketTasks(tasks []models.Task, tags []models.Tag, now time.Time) *Dashboard {
	d := &Dashboard{
		Overdue:   []models.Task{},
		DueSoon:   []models.Task{},
		Backlog:   []models.Task{},
		Completed: []models.Task{},
		Tags:      orEmpty(tags),
	}
	soon := now.Add(dueSoonWindow)

	for _, t := range tasks {
		switch {
		case t.Status == models.StatusDone:
			d.Completed = append(d.Completed, t)
		case t.DueDate != nil && t.DueDate.Before(now):
			d.Overdue = append(d.Overdue, t)
		case t.DueDate != nil && !t.DueDate.After(soon):
			d.DueSoon = append(d.DueSoon, t)
		default:
			d.Backlog = append(d.Backlog, t)
		}
	}

	byDue := func(list []models.Task) {
		sort.SliceStable(list, func(i, j int) bool { return compareDue(list[i], list[j]) < 0 })
	}
	byDue(d.Overdue)
	byDue(d.DueSoon)

	sort.SliceStable(d.Backlog, func(i, j int) bool {
		a, b := d.Backlog[i], d.Backlog[j]
		if pa, pb := PriorityRank(a.Priority), PriorityRank(b.Priority); pa != pb {
			return pa < pb
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})

	sort.SliceStable(d.Completed, func(i, j int) bool {
		return d.Completed[i].UpdatedAt.After(d.Completed[j].UpdatedAt)
	})
	if len(d.Completed) > completedShown {
		d.Completed = d.Completed[:completedShown]
	}
	return d
}

// Reports summarizes status and priority balance, tag usage and completion
// velocity over the last thirty days
func (r *Reader) Reports(ctx context.Context, sessionID string) (*Reports, error) {
	return cached(r, cacheKey{session: sessionID, scope: service.ScopeReports}, func() (*Reports, error) {
		tasks, err := r.db.ListTasks(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		usage, err := r.db.ListTagUsage(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		byStatus, err := r.db.CountTasksByStatus(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("count by status: %w", err)
		}
		byPriority, err := r.db.CountTasksByPriority(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("count by priority: %w", err)
		}

		now := r.Now()
		since := now.AddDate(0, 0, -completedWindow)
		rep := &Reports{
			Total:      len(tasks),
			ByStatus:   byStatus,
			ByPriority: byPriority,
			TagUsage:   orEmpty(usage),
		}
		for _, t := range tasks {
			if t.Status == models.StatusDone && !t.UpdatedAt.Before(since) {
				rep.CompletedRecent++
			}
		}
		rep.OverdueOpen = countOverdueOpen(tasks, now)
		rep.CompletedPerDay = perDay(rep.CompletedRecent, completedWindow)
		return rep, nil
	})
}

// Calendar groups the session's tasks by due day in ascending order
func (r *Reader) Calendar(ctx context.Context, sessionID string) (*Calendar, error) {
	return cached(r, cacheKey{session: sessionID, scope: service.ScopeCalendar}, func() (*Calendar, error) {
		tasks, err := r.db.ListTasks(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		return GroupByDay(tasks), nil
	})
}

// GroupByDay buckets tasks by the UTC day they are due. Within a day the most
// recently updated task comes first.
func GroupByDay(tasks []models.Task) *Calendar {
	sorted := make([]models.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := compareDue(a, b); c != 0 {
			return c < 0
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})

	cal := &Calendar{Days: []CalendarDay{}, Undated: []models.Task{}}
	for _, t := range sorted {
		if t.DueDate == nil {
			cal.Undated = append(cal.Undated, t)
			continue
		}
		day := t.DueDate.UTC().Format(dayLayout)
		if n := len(cal.Days); n > 0 && cal.Days[n-1].Date == day {
			cal.Days[n-1].Tasks = append(cal.Days[n-1].Tasks, t)
			continue
		}
		cal.Days = append(cal.Days, CalendarDay{Date: day, Tasks: []models.Task{t}})
	}
	return cal
}

// Activity returns the thirty most recently updated tasks with their status
// counts and how many of them are open past their due date
func (r *Reader) Activity(ctx context.Context, sessionID string) (*Activity, error) {
	return cached(r, cacheKey{session: sessionID, scope: service.ScopeActivity}, func() (*Activity, error) {
		tasks, err := r.db.ListTasks(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt) })
		if len(tasks) > activityLimit {
			tasks = tasks[:activityLimit]
		}

		a := &Activity{Recent: orEmpty(tasks), StatusCounts: make(map[models.Status]int)}
		for _, t := range tasks {
			a.StatusCounts[t.Status]++
		}
		a.OverdueOpen = countOverdueOpen(tasks, r.Now())
		return a, nil
	})
}

func countOverdueOpen(tasks []models.Task, now time.Time) int {
	n := 0
	for _, t := range tasks {
		if t.Status != models.StatusDone && t.DueDate != nil && t.DueDate.Before(now) {
			n++
		}
	}
	return n
}

func perDay(n, days int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(max(1, days))*100) / 100
}

// compareDue orders by due date with undated tasks last
func compareDue(a, b models.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	}
	return compareTime(*a.DueDate, *b.DueDate)
}

func compareTime(a, b time.Time) int {
	return a.Compare(b)
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
