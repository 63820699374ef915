package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
)

type seedTag struct {
	Name  string
	Color string
}

type seedTask struct {
	Title       string
	Description string
	Status      models.Status
	Priority    models.Priority
	DueInDays   int
	Tags        []string
}

// DefaultTags are created for every new session
var DefaultTags = []seedTag{
	{Name: "Work", Color: "#0EA5E9"},
	{Name: "Home", Color: "#22C55E"},
	{Name: "Errands", Color: "#F97316"},
}

// DefaultTasks are created for every new session that has no tasks yet
var DefaultTasks = []seedTask{
	{
		Title:       "Submit expense report",
		Description: "Upload receipts and send to finance.",
		Status:      models.StatusOverdue,
		Priority:    models.PriorityUrgent,
		DueInDays:   -2,
		Tags:        []string{"Work"},
	},
	{
		Title:       "Plan sprint demo",
		Description: "Outline talking points and share agenda.",
		Status:      models.StatusInProgress,
		Priority:    models.PriorityHigh,
		DueInDays:   4,
		Tags:        []string{"Work"},
	},
	{
		Title:       "Book quarterly sync",
		Description: "Coordinate calendar slots with the leadership team.",
		Status:      models.StatusNotStarted,
		Priority:    models.PriorityMedium,
		DueInDays:   24,
		Tags:        []string{"Home", "Errands"},
	},
}

// seed populates default tags and tasks for a session that has never been
// seeded. It re-reads the session inside its own transaction, so concurrent
// first requests seed at most once. Seeding does not touch usage counters.
func seed(ctx context.Context, database *db.DB, sessionID string, now time.Time) (*models.Session, bool, error) {
	var (
		session *models.Session
		seeded  bool
	)

	err := database.WithTx(ctx, func(q *db.Queries) error {
		s, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.SeededAt != nil {
			session = s
			return nil
		}

		tags, err := q.ListTags(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}

		byName := make(map[string]string, len(tags))
		if len(tags) == 0 {
			for _, t := range DefaultTags {
				created, err := q.CreateTag(ctx, sessionID, t.Name, t.Color)
				if err != nil {
					return err
				}
				byName[strings.ToLower(created.Name)] = created.ID
			}
		} else {
			for _, t := range tags {
				byName[strings.ToLower(t.Name)] = t.ID
			}
		}

		taskCount, err := q.CountTasks(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		if taskCount == 0 {
			for _, t := range DefaultTasks {
				due := now.AddDate(0, 0, t.DueInDays)
				var tagIDs []string
				for _, name := range t.Tags {
					if id, ok := byName[strings.ToLower(name)]; ok {
						tagIDs = append(tagIDs, id)
					}
				}
				fields := db.TaskFields{
					Title:       t.Title,
					Description: t.Description,
					DueDate:     &due,
					Priority:    t.Priority,
					Status:      t.Status,
				}
				if _, err := q.CreateTask(ctx, sessionID, fields, tagIDs); err != nil {
					return err
				}
			}
		}

		if err := q.MarkSessionSeeded(ctx, sessionID, now); err != nil {
			return fmt.Errorf("mark seeded: %w", err)
		}

		session, err = q.GetSession(ctx, sessionID)
		seeded = true
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("seed session %s: %w", sessionID, err)
	}
	return session, seeded, nil
}
