package views

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/identity"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/quota"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/ui/keys"
	"github.com/tgienger/taskdemo/internal/ui/styles"
	taskviews "github.com/tgienger/taskdemo/internal/views"
)

// Backend is everything the console reads from and writes to
type Backend struct {
	DB       *db.DB
	Service  *service.Service
	Reader   *taskviews.Reader
	Resolver *identity.Resolver
}

type sessionItem struct {
	session models.Session
}

func (i sessionItem) Title() string {
	title := shortID(i.session.ID)
	if i.session.SeededAt == nil {
		title += " (unseeded)"
	}
	return title
}

func (i sessionItem) Description() string {
	s := i.session
	return fmt.Sprintf("creates %d/%d • edits %d/%d • tag edits %d/%d • active %s",
		s.TaskCreateCount, quota.TaskCreateLimit,
		s.TaskUpdateCount, quota.TaskUpdateLimit,
		s.TagUpdateCount, quota.TagUpdateLimit,
		s.UpdatedAt.Local().Format("Jan 2 15:04"))
}

func (i sessionItem) FilterValue() string { return i.session.ID }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type sessionDelegate struct {
	styles *styles.Styles
	width  int
}

func (d sessionDelegate) Height() int                               { return 2 }
func (d sessionDelegate) Spacing() int                              { return 1 }
func (d sessionDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d sessionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	p, ok := item.(sessionItem)
	if !ok {
		return
	}

	selected := index == m.Index()
	width := max(d.width-4, 20)

	var titleStyle, descStyle lipgloss.Style
	if selected {
		titleStyle = d.styles.ListSelected.Width(width)
		descStyle = d.styles.ListSelected.Foreground(styles.Current.ForegroundDim).Width(width)
	} else {
		titleStyle = d.styles.ListItem.Width(width)
		descStyle = d.styles.ListItem.Foreground(styles.Current.ForegroundDim).Width(width)
	}

	fmt.Fprintf(w, "%s\n%s", titleStyle.Render(p.Title()), descStyle.Render(p.Description()))
}

// SessionListView lists every demo session
type SessionListView struct {
	backend          Backend
	list             list.Model
	delegate         *sessionDelegate
	styles           *styles.Styles
	keys             keys.KeyMap
	width            int
	height           int
	loaded           bool
	confirmingDelete bool
	deleteTargetID   string
	status           string

	// Help popup (shown with ? at narrow widths)
	showHelpPopup bool
}

// NewSessionListView creates the session picker
func NewSessionListView(backend Backend) *SessionListView {
	s := styles.NewStyles()

	delegate := &sessionDelegate{styles: s, width: 80}

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Sessions"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = s.Title
	l.SetShowHelp(false)

	return &SessionListView{
		backend:  backend,
		list:     l,
		delegate: delegate,
		styles:   s,
		keys:     keys.DefaultKeyMap(),
	}
}

// Init loads the sessions
func (v *SessionListView) Init() tea.Cmd {
	return v.loadSessions
}

func (v *SessionListView) loadSessions() tea.Msg {
	sessions, err := v.backend.DB.ListSessions(context.Background())
	if err != nil {
		return errMsg{err: err}
	}
	return sessionsLoadedMsg{sessions: sessions}
}

// createSession mints and seeds a new session, exactly as a first visit would
func (v *SessionListView) createSession() tea.Msg {
	sess, err := v.backend.Resolver.GetOrCreate(context.Background(), identity.Identity{})
	if err != nil {
		return errMsg{err: err}
	}
	return SelectedSession{Session: *sess}
}

type sessionsLoadedMsg struct {
	sessions []models.Session
}

type errMsg struct {
	err error
}

// SelectedSession signals that a session was chosen
type SelectedSession struct {
	Session models.Session
}

// Update handles messages
func (v *SessionListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(msg.Width)
		v.delegate.width = contentWidth
		v.list.SetSize(contentWidth-4, msg.Height-7)
		return v, nil

	case sessionsLoadedMsg:
		items := make([]list.Item, len(msg.sessions))
		for i, s := range msg.sessions {
			items[i] = sessionItem{session: s}
		}
		v.list.SetItems(items)
		v.loaded = true
		return v, nil

	case errMsg:
		v.loaded = true
		v.status = msg.err.Error()
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}

		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}

		// Let the list own keys while its filter is being typed
		if v.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Back):
			return v, nil
		case key.Matches(msg, v.keys.New):
			v.status = ""
			return v, v.createSession
		case key.Matches(msg, v.keys.Refresh):
			return v, v.loadSessions
		case msg.String() == "?":
			v.showHelpPopup = true
			return v, nil
		case key.Matches(msg, v.keys.Enter):
			if item, ok := v.list.SelectedItem().(sessionItem); ok {
				return v, func() tea.Msg {
					return SelectedSession{Session: item.session}
				}
			}
		case key.Matches(msg, v.keys.Delete):
			if item, ok := v.list.SelectedItem().(sessionItem); ok {
				v.confirmingDelete = true
				v.deleteTargetID = item.session.ID
				return v, nil
			}
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

func (v *SessionListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		if err := v.backend.DB.DeleteSession(context.Background(), v.deleteTargetID); err != nil {
			v.status = err.Error()
			return v, nil
		}
		return v, v.loadSessions
	case "n", "N", "esc":
		v.confirmingDelete = false
		return v, nil
	}
	return v, nil
}

// View renders the view
func (v *SessionListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if v.confirmingDelete {
		return v.renderDeleteConfirm()
	}

	if !v.loaded {
		return v.styles.TitleMuted.Render("Loading...")
	}

	if len(v.list.Items()) == 0 {
		return v.renderEmpty()
	}

	content := v.list.View() + "\n" + v.renderStatus() + v.renderHelp()
	return styles.CenterView(content, v.width, v.height)
}

func (v *SessionListView) renderStatus() string {
	if v.status == "" {
		return ""
	}
	return v.styles.StatusError.Render(v.status) + "\n"
}

func (v *SessionListView) renderEmpty() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Render("No Sessions"),
		"",
		s.TitleMuted.Render("Press 'n' to start a seeded demo session"),
		"",
		s.ButtonPrimary.Render(" New Session "),
		"",
		v.renderStatus(),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *SessionListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}
	return v.styles.Help.Render(
		fmt.Sprintf("%s open • %s new • %s del • %s refresh • %s quit",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("d"),
			v.styles.HelpKey.Render("r"),
			v.styles.HelpKey.Render("q"),
		),
	)
}

func (v *SessionListView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	helpItems := []string{
		s.HelpKey.Render("↵") + "      open session",
		s.HelpKey.Render("n") + "      new seeded session",
		s.HelpKey.Render("d") + "      delete session",
		s.HelpKey.Render("r") + "      refresh",
		s.HelpKey.Render("q") + "      quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.FilterBar.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *SessionListView) renderDeleteConfirm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render("Delete Session?"),
		"",
		s.TitleMuted.Render(fmt.Sprintf("Session %s and all of its tasks and tags will be removed.", shortID(v.deleteTargetID))),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}
