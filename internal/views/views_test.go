package views

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/service"
)

var refNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := refNow.Add(d)
	return &t
}

func task(title string, status models.Status, priority models.Priority, due *time.Time) models.Task {
	return models.Task{
		ID:        title,
		Title:     title,
		Status:    status,
		Priority:  priority,
		DueDate:   due,
		CreatedAt: refNow,
		UpdatedAt: refNow,
	}
}

func titles(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestFilters_Normalize(t *testing.T) {
	f, err := Filters{Query: "  milk  ", TagID: " t1 "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "milk", f.Query)
	assert.Equal(t, "t1", f.TagID)

	_, err = Filters{Query: strings.Repeat("é", maxQueryLength+1)}.Normalize()
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	_, err = Filters{Query: strings.Repeat("é", maxQueryLength)}.Normalize()
	assert.NoError(t, err, "length counts runes, not bytes")

	_, err = Filters{Status: "SOMEDAY"}.Normalize()
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestBucketTasks(t *testing.T) {
	tasks := []models.Task{
		task("done", models.StatusDone, models.PriorityHigh, at(-48*time.Hour)),
		task("late", models.StatusInProgress, models.PriorityLow, at(-time.Hour)),
		task("later", models.StatusNotStarted, models.PriorityLow, at(-24*time.Hour)),
		task("tomorrow", models.StatusNotStarted, models.PriorityLow, at(24*time.Hour)),
		task("edge", models.StatusNotStarted, models.PriorityLow, at(7*24*time.Hour)),
		task("next month", models.StatusNotStarted, models.PriorityLow, at(30*24*time.Hour)),
		task("someday urgent", models.StatusNotStarted, models.PriorityUrgent, nil),
	}

	d := BucketTasks(tasks, nil, refNow)

	assert.Equal(t, []string{"later", "late"}, titles(d.Overdue), "oldest due first")
	assert.Equal(t, []string{"tomorrow", "edge"}, titles(d.DueSoon), "seven days is inclusive")
	assert.Equal(t, []string{"someday urgent", "next month"}, titles(d.Backlog), "most urgent first")
	assert.Equal(t, []string{"done"}, titles(d.Completed))
	assert.NotNil(t, d.Tags)
}

func TestBucketTasks_CompletedCapped(t *testing.T) {
	var tasks []models.Task
	for i := 0; i < completedShown+3; i++ {
		done := task(string(rune('a'+i)), models.StatusDone, models.PriorityLow, nil)
		done.UpdatedAt = refNow.Add(time.Duration(i) * time.Minute)
		tasks = append(tasks, done)
	}

	d := BucketTasks(tasks, nil, refNow)
	require.Len(t, d.Completed, completedShown)
	assert.Equal(t, "h", d.Completed[0].Title, "most recently completed first")
}

func TestGroupByDay(t *testing.T) {
	a := task("a", models.StatusNotStarted, models.PriorityLow, at(2*time.Hour))
	b := task("b", models.StatusNotStarted, models.PriorityLow, at(3*time.Hour))
	b.UpdatedAt = refNow.Add(time.Minute)
	c := task("c", models.StatusNotStarted, models.PriorityLow, at(26*time.Hour))
	u := task("undated", models.StatusNotStarted, models.PriorityLow, nil)

	cal := GroupByDay([]models.Task{u, c, b, a})

	require.Len(t, cal.Days, 2)
	assert.Equal(t, "2026-06-15", cal.Days[0].Date)
	assert.Equal(t, []string{"a", "b"}, titles(cal.Days[0].Tasks))
	assert.Equal(t, "2026-06-16", cal.Days[1].Date)
	assert.Equal(t, []string{"undated"}, titles(cal.Undated))
}

func TestSortTasks(t *testing.T) {
	tasks := []models.Task{
		task("none", models.StatusDone, models.PriorityLow, nil),
		task("late", models.StatusOverdue, models.PriorityUrgent, at(-time.Hour)),
		task("soon", models.StatusInProgress, models.PriorityMedium, at(time.Hour)),
	}

	asc := SortTasks(tasks, SortConfig{Key: SortDueDate, Dir: Asc})
	assert.Equal(t, []string{"late", "soon", "none"}, titles(asc))

	desc := SortTasks(tasks, SortConfig{Key: SortDueDate, Dir: Desc})
	assert.Equal(t, []string{"soon", "late", "none"}, titles(desc), "undated stays last")

	byPriority := SortTasks(tasks, SortConfig{Key: SortPriority, Dir: Asc})
	assert.Equal(t, []string{"late", "soon", "none"}, titles(byPriority))

	byStatus := SortTasks(tasks, SortConfig{Key: SortStatus, Dir: Desc})
	assert.Equal(t, []string{"none", "soon", "late"}, titles(byStatus))

	assert.Equal(t, titles(tasks), titles(SortTasks(tasks, SortConfig{})))
	assert.Equal(t, "none", tasks[0].Title, "input is not reordered")
}

func TestNextSort(t *testing.T) {
	cfg := NextSort(SortConfig{}, SortPriority)
	assert.Equal(t, SortConfig{Key: SortPriority, Dir: Asc}, cfg)

	cfg = NextSort(cfg, SortPriority)
	assert.Equal(t, SortConfig{Key: SortPriority, Dir: Desc}, cfg)

	cfg = NextSort(cfg, SortPriority)
	assert.True(t, cfg.IsZero())

	cfg = NextSort(SortConfig{Key: SortPriority, Dir: Desc}, SortStatus)
	assert.Equal(t, SortConfig{Key: SortStatus, Dir: Asc}, cfg)
}

func TestRanks(t *testing.T) {
	assert.Less(t, PriorityRank(models.PriorityUrgent), PriorityRank(models.PriorityLow))
	assert.Equal(t, 4, PriorityRank("???"))
	assert.Less(t, StatusRank(models.StatusOverdue), StatusRank(models.StatusDone))
	assert.Equal(t, 4, StatusRank("???"))
}

func TestPerDay(t *testing.T) {
	assert.Zero(t, perDay(0, 30))
	assert.Equal(t, 0.33, perDay(10, 30))
	assert.Equal(t, 0.03, perDay(1, 30))
}

func TestCache_InvalidateAndExpire(t *testing.T) {
	c := NewCache(time.Minute)
	clock := refNow
	c.now = func() time.Time { return clock }

	tasks := cacheKey{session: "s1", scope: service.ScopeTasks}
	tags := cacheKey{session: "s1", scope: service.ScopeTags}
	other := cacheKey{session: "s2", scope: service.ScopeTasks}
	c.put(tasks, 1, c.begin())
	c.put(tags, 2, c.begin())
	c.put(other, 3, c.begin())

	c.Invalidate("s1", service.ScopeTasks)
	_, ok := c.get(tasks)
	assert.False(t, ok)
	v, ok := c.get(tags)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Invalidate("s1")
	assert.Equal(t, 1, c.Len(), "other sessions are untouched")

	clock = clock.Add(2 * time.Minute)
	_, ok = c.get(other)
	assert.False(t, ok, "expired")
	assert.Zero(t, c.Len())
}

func TestCache_DropsViewBuiltBeforeInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	clock := refNow
	c.now = func() time.Time { return clock }

	key := cacheKey{session: "s1", scope: service.ScopeTasks}
	other := cacheKey{session: "s2", scope: service.ScopeTasks}

	started := c.begin()
	c.Invalidate("s1", service.ScopeTasks)
	c.put(key, "stale", started)
	c.put(other, "fine", started)

	_, ok := c.get(key)
	assert.False(t, ok, "snapshot predates the invalidation")
	_, ok = c.get(other)
	assert.True(t, ok, "other sessions still cache")

	// Still rejected once the generation itself has been swept
	clock = clock.Add(2 * time.Minute)
	c.put(cacheKey{session: "s3"}, "trigger sweep", c.begin())
	c.put(key, "stale", started)
	_, ok = c.get(key)
	assert.False(t, ok)

	c.put(key, "fresh", c.begin())
	v, ok := c.get(key)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestCache_SweepsExpiredEntries(t *testing.T) {
	c := NewCache(time.Minute)
	clock := refNow
	c.now = func() time.Time { return clock }

	for i := 0; i < 500; i++ {
		session := fmt.Sprintf("s%d", i)
		c.put(cacheKey{session: session, scope: service.ScopeTasks, variant: session}, i, c.begin())
		c.Invalidate(session, service.ScopeDashboard)
	}
	assert.Equal(t, 500, c.Len())

	clock = clock.Add(2 * time.Minute)
	c.put(cacheKey{session: "late", scope: service.ScopeTasks}, 0, c.begin())

	c.mu.Lock()
	entries, gens := len(c.entries), len(c.gens)
	c.mu.Unlock()
	assert.Equal(t, 1, entries, "put sweeps expired entries")
	assert.Zero(t, gens)

	clock = clock.Add(2 * time.Minute)
	assert.Zero(t, c.Len())
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	c.put(cacheKey{}, 1, c.begin())
	_, ok := c.get(cacheKey{})
	assert.False(t, ok)
	c.Invalidate("s")
	assert.Zero(t, c.Len())
}

func newTestReader(t *testing.T) (*Reader, *db.DB, *models.Session, *Cache) {
	t.Helper()

	database, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "views.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	s, err := database.CreateSession(context.Background())
	require.NoError(t, err)

	cache := NewCache(time.Hour)
	r := NewReader(database, cache)
	r.Now = func() time.Time { return refNow }
	return r, database, s, cache
}

func TestCached_InvalidateDuringBuild(t *testing.T) {
	r, database, s, cache := newTestReader(t)
	ctx := context.Background()
	key := cacheKey{session: s.ID, scope: service.ScopeReports}

	count := func() (int, error) { return database.CountTasks(ctx, s.ID) }

	got, err := cached(r, key, func() (int, error) {
		n, err := count()
		if err != nil {
			return 0, err
		}
		// A mutation commits while this view is being built
		_, err = database.CreateTask(ctx, s.ID, db.TaskFields{Title: "racer", Priority: models.PriorityLow, Status: models.StatusNotStarted}, nil)
		require.NoError(t, err)
		cache.Invalidate(s.ID, service.ScopeReports)
		return n, nil
	})
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = cached(r, key, count)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "the stale snapshot was not stored")
}

func TestReader_TaskListOrderAndFilters(t *testing.T) {
	r, database, s, _ := newTestReader(t)
	ctx := context.Background()

	tag, err := database.CreateTag(ctx, s.ID, "Work", "#0EA5E9")
	require.NoError(t, err)

	create := func(title string, due *time.Time, p models.Priority, tagIDs ...string) {
		_, err := database.CreateTask(ctx, s.ID, db.TaskFields{Title: title, DueDate: due, Priority: p, Status: models.StatusNotStarted}, tagIDs)
		require.NoError(t, err)
	}
	create("undated low", nil, models.PriorityLow)
	create("undated urgent", nil, models.PriorityUrgent, tag.ID)
	create("due later", at(48*time.Hour), models.PriorityLow)
	create("due soon", at(time.Hour), models.PriorityLow, tag.ID)

	list, err := r.TaskList(ctx, s.ID, Filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"due soon", "due later", "undated urgent", "undated low"}, titles(list.Tasks))
	require.Len(t, list.Tags, 1)
	assert.Equal(t, 2, list.Tags[0].UsageCount)
	assert.Equal(t, 4, list.StatusCounts[models.StatusNotStarted])

	filtered, err := r.TaskList(ctx, s.ID, Filters{TagID: tag.ID, Query: "due"})
	require.NoError(t, err)
	assert.Equal(t, []string{"due soon"}, titles(filtered.Tasks))

	_, err = r.TaskList(ctx, s.ID, Filters{Status: "BOGUS"})
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestReader_CachedUntilInvalidated(t *testing.T) {
	r, database, s, cache := newTestReader(t)
	ctx := context.Background()

	svc := service.New(database, nil, nil, cache)

	first, err := r.Dashboard(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, first.Backlog)

	// A write that bypasses the service is invisible until invalidation
	_, err = database.CreateTask(ctx, s.ID, db.TaskFields{Title: "raw", Priority: models.PriorityLow, Status: models.StatusNotStarted}, nil)
	require.NoError(t, err)
	stale, err := r.Dashboard(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, stale.Backlog)

	res := svc.CreateTask(ctx, s.ID, service.TaskInput{Title: "via service", Priority: models.PriorityHigh, Status: models.StatusNotStarted})
	require.True(t, res.Success, res.Error)

	fresh, err := r.Dashboard(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.Backlog, 2)
}

func TestReader_ReportsAndActivity(t *testing.T) {
	r, database, s, _ := newTestReader(t)
	ctx := context.Background()

	create := func(title string, status models.Status, due *time.Time) {
		_, err := database.CreateTask(ctx, s.ID, db.TaskFields{Title: title, DueDate: due, Priority: models.PriorityMedium, Status: status}, nil)
		require.NoError(t, err)
	}
	// Completion is judged against real update times, so read relative to the wall clock
	r.Now = time.Now
	fromNow := func(d time.Duration) *time.Time {
		t := time.Now().Add(d)
		return &t
	}

	create("finished", models.StatusDone, nil)
	create("overdue", models.StatusOverdue, fromNow(-72*time.Hour))
	create("open", models.StatusNotStarted, fromNow(72*time.Hour))

	rep, err := r.Reports(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.ByStatus[models.StatusDone])
	assert.Equal(t, 3, rep.ByPriority[models.PriorityMedium])
	assert.Equal(t, 1, rep.CompletedRecent)
	assert.Equal(t, 0.03, rep.CompletedPerDay)
	assert.Equal(t, 1, rep.OverdueOpen)

	act, err := r.Activity(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, act.Recent, 3)
	assert.Equal(t, 1, act.StatusCounts[models.StatusOverdue])

	cal, err := r.Calendar(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, cal.Days, 2)
	assert.Len(t, cal.Undated, 1)

	usage, err := r.Usage(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, Usage{Tasks: 3, Tags: 0}, *usage)
}
