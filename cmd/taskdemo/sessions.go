package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdemo/internal/quota"
	"github.com/tgienger/taskdemo/internal/ui/styles"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions and their quota usage",
	RunE:  runSessions,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a session with all of its tasks and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.DeleteSession(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete session %s: %w", args[0], err)
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	sessions, err := a.db.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	theme := styles.Current
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	rows := make([][]string, 0, len(sessions))
	colors := map[[2]int]lipgloss.Color{}
	for i, s := range sessions {
		tasks, err := a.db.CountTasks(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		tags, err := a.db.CountTags(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("count tags: %w", err)
		}

		cols := []struct {
			used, limit int
		}{
			{tasks, quota.TaskAliveLimit},
			{s.TaskCreateCount, quota.TaskCreateLimit},
			{s.TaskUpdateCount, quota.TaskUpdateLimit},
			{tags, quota.TagAliveLimit},
			{s.TagUpdateCount, quota.TagUpdateLimit},
		}
		row := []string{s.ID}
		for j, c := range cols {
			row = append(row, fmt.Sprintf("%d/%d", c.used, c.limit))
			colors[[2]int{i, j + 1}] = styles.UsageColor(c.used, c.limit)
		}
		row = append(row, strconv.Itoa(s.TagCreateCount), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		Headers("SESSION", "TASKS", "CREATES", "EDITS", "TAGS", "TAG EDITS", "TAG CREATES", "ACTIVE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if color, ok := colors[[2]int{row, col}]; ok {
				return cell.Foreground(color)
			}
			return cell
		})

	fmt.Println(t)
	return nil
}
