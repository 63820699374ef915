package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/ui/views"
)

const lastSessionKey = "last_session_id"

// Currently active view
type View int

const (
	ViewSessions View = iota
	ViewTasks
)

type App struct {
	backend     views.Backend
	currentView View
	sessionList *views.SessionListView
	taskList    *views.TaskListView
	width       int
	height      int
}

// Creates a new application
func NewApp(backend views.Backend) *App {
	return &App{
		backend:     backend,
		currentView: ViewSessions,
		sessionList: views.NewSessionListView(backend),
	}
}

func (a *App) Init() tea.Cmd {
	ctx := context.Background()

	// Reopen the last session if it still exists
	lastID, err := a.backend.DB.GetSetting(ctx, lastSessionKey)
	if err == nil && lastID != "" {
		if session, err := a.backend.DB.GetSession(ctx, lastID); err == nil {
			return a.openSession(*session)
		}
	}

	return a.sessionList.Init()
}

func (a *App) openSession(session models.Session) tea.Cmd {
	a.currentView = ViewTasks
	a.taskList = views.NewTaskListView(a.backend, session)

	_ = a.backend.DB.SetSetting(context.Background(), lastSessionKey, session.ID)

	// Initialize task list with window size
	return tea.Batch(
		a.taskList.Init(),
		func() tea.Msg {
			return tea.WindowSizeMsg{Width: a.width, Height: a.height}
		},
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Always update session list size since it persists
		a.sessionList.Update(msg)

	case views.SelectedSession:
		return a, a.openSession(msg.Session)

	case views.BackToSessions:
		a.currentView = ViewSessions
		_ = a.backend.DB.SetSetting(context.Background(), lastSessionKey, "")
		return a, tea.Batch(
			a.sessionList.Init(),
			func() tea.Msg {
				return tea.WindowSizeMsg{Width: a.width, Height: a.height}
			},
		)
	}

	var cmd tea.Cmd
	switch a.currentView {
	case ViewSessions:
		_, cmd = a.sessionList.Update(msg)
	case ViewTasks:
		_, cmd = a.taskList.Update(msg)
	}

	return a, cmd
}

func (a *App) View() string {
	switch a.currentView {
	case ViewTasks:
		if a.taskList != nil {
			return a.taskList.View()
		}
	}
	return a.sessionList.View()
}
