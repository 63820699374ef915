package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/quota"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/ui/keys"
	"github.com/tgienger/taskdemo/internal/ui/styles"
	taskviews "github.com/tgienger/taskdemo/internal/views"
)

const dueLayout = "2006-01-02"

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// FocusArea represents which part of the UI has focus
type FocusArea int

const (
	FocusBackButton FocusArea = iota
	FocusSearchInput
	FocusTagDropdown
	FocusTaskList
)

// Edit form fields, in tab order
const (
	editFieldTitle = iota
	editFieldDesc
	editFieldDue
	editFieldPriority
	editFieldStatus
	editFieldTags
	editFieldSave
	editFieldCount
)

// TaskListView shows the tasks of one session
type TaskListView struct {
	backend Backend
	session models.Session
	usage   taskviews.Usage
	tasks   []models.Task
	tags    []models.Tag
	styles  *styles.Styles
	keys    keys.KeyMap

	width  int
	height int

	// UI state
	focus       FocusArea
	cursor      int
	scrollY     int
	searchInput textinput.Model
	selectedTag string // empty = no filter

	// Tag dropdown state
	tagDropdownOpen bool
	tagCursor       int

	// Task creation/editing
	editing       bool
	editingNew    bool
	editTitle     textinput.Model
	editDesc      textarea.Model
	editDue       textinput.Model
	editPriority  models.Priority
	editStatus    models.Status
	editFocusIdx  int
	editTags      []string // IDs of tags selected for this task
	editTagCursor int

	// Tag assignment mode
	assigningTags   bool
	assignTagCursor int
	assigningTaskID string

	// Task view mode (read-only detail view)
	viewingTask bool

	// Delete confirmation
	confirmingDelete bool
	deleteTargetID   string
	deleteTargetName string

	// Show completed tasks mode
	showingCompleted bool

	// Column sort, cycled with o
	sort taskviews.SortConfig

	// Outcome of the last mutation
	statusMsg   string
	statusIsErr bool

	// Help popup (shown with ? at narrow widths)
	showHelpPopup bool
}

// NewTaskListView creates a new task list view
func NewTaskListView(backend Backend, session models.Session) *TaskListView {
	s := styles.NewStyles()

	search := textinput.New()
	search.Placeholder = "Search tasks..."
	search.CharLimit = 120

	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Description"
	editDesc.CharLimit = 2000
	editDesc.SetWidth(50)
	editDesc.SetHeight(3)
	editDesc.ShowLineNumbers = false

	editDue := textinput.New()
	editDue.Placeholder = "YYYY-MM-DD"
	editDue.CharLimit = 10

	return &TaskListView{
		backend:     backend,
		session:     session,
		styles:      s,
		keys:        keys.DefaultKeyMap(),
		focus:       FocusTaskList,
		searchInput: search,
		editTitle:   editTitle,
		editDesc:    editDesc,
		editDue:     editDue,
	}
}

// BackToSessions signals to go back to the session list
type BackToSessions struct{}

// Init initializes the view
func (v *TaskListView) Init() tea.Cmd {
	return v.loadTasks
}

type tasksLoadedMsg struct {
	list    *taskviews.TaskList
	session *models.Session
	usage   *taskviews.Usage
}

type mutationMsg struct {
	result service.Result
	done   string
}

func (v *TaskListView) loadTasks() tea.Msg {
	ctx := context.Background()

	filters := taskviews.Filters{
		TagID: v.selectedTag,
		Query: v.searchInput.Value(),
	}
	if v.showingCompleted {
		filters.Status = models.StatusDone
	}

	list, err := v.backend.Reader.TaskList(ctx, v.session.ID, filters)
	if err != nil {
		return errMsg{err: err}
	}
	session, err := v.backend.DB.GetSession(ctx, v.session.ID)
	if err != nil {
		return errMsg{err: err}
	}
	usage, err := v.backend.Reader.Usage(ctx, v.session.ID)
	if err != nil {
		return errMsg{err: err}
	}
	return tasksLoadedMsg{list: list, session: session, usage: usage}
}

// mutate runs a service call and reports its outcome
func (v *TaskListView) mutate(done string, fn func(ctx context.Context) service.Result) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{result: fn(context.Background()), done: done}
	}
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(v.width)
		v.editDesc.SetWidth(clamp(contentWidth-10, 20, 50))
		return v, nil

	case tasksLoadedMsg:
		v.session = *msg.session
		v.usage = *msg.usage
		v.tags = v.tags[:0]
		for _, t := range msg.list.Tags {
			v.tags = append(v.tags, t.Tag)
		}
		v.tasks = v.tasks[:0]
		for _, t := range taskviews.SortTasks(msg.list.Tasks, v.sort) {
			// Done tasks only show in completed mode
			if !v.showingCompleted && t.Status == models.StatusDone {
				continue
			}
			v.tasks = append(v.tasks, t)
		}
		if v.cursor >= len(v.tasks) {
			v.cursor = max(0, len(v.tasks)-1)
		}
		if v.assigningTags && v.taskIndex(v.assigningTaskID) < 0 {
			v.assigningTags = false
			v.assigningTaskID = ""
		}
		return v, nil

	case mutationMsg:
		if msg.result.Success {
			v.statusMsg = msg.done
			v.statusIsErr = false
			v.editing = false
		} else {
			v.statusMsg = msg.result.Error
			v.statusIsErr = true
		}
		return v, v.loadTasks

	case errMsg:
		v.statusMsg = msg.err.Error()
		v.statusIsErr = true
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}

		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}

		if v.editing {
			return v.updateEditing(msg)
		}

		if v.viewingTask {
			return v.updateViewingTask(msg)
		}

		if v.assigningTags {
			return v.updateAssigningTags(msg)
		}

		if v.tagDropdownOpen {
			return v.updateTagDropdown(msg)
		}

		return v.updateNormal(msg)
	}

	return v, nil
}

func (v *TaskListView) taskIndex(id string) int {
	for i, t := range v.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (v *TaskListView) selectedTask() (models.Task, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle search input typing first - don't process hotkeys while typing
	if v.focus == FocusSearchInput {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.searchInput.Blur()
			v.focus = FocusTaskList
			return v, nil
		case key.Matches(msg, v.keys.Enter):
			v.searchInput.Blur()
			v.focus = FocusTaskList
			return v, v.loadTasks
		default:
			var cmd tea.Cmd
			v.searchInput, cmd = v.searchInput.Update(msg)
			return v, tea.Batch(cmd, v.loadTasks)
		}
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg { return BackToSessions{} }

	case key.Matches(msg, v.keys.Tab):
		v.cycleFocus(1)
		return v, nil

	case msg.String() == "shift+tab":
		v.cycleFocus(-1)
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.focus == FocusTaskList && v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.focus == FocusTaskList && v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.focus {
		case FocusBackButton:
			return v, func() tea.Msg { return BackToSessions{} }
		case FocusTagDropdown:
			v.tagDropdownOpen = true
			v.tagCursor = 0
			return v, nil
		case FocusTaskList:
			if len(v.tasks) > 0 {
				v.viewingTask = true
			}
		}
		return v, nil

	case key.Matches(msg, v.keys.Edit):
		if task, ok := v.selectedTask(); ok && v.focus == FocusTaskList {
			v.startEditTask(task)
			return v, textinput.Blink
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		v.startNewTask()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Delete):
		if task, ok := v.selectedTask(); ok && v.focus == FocusTaskList {
			v.confirmDelete(task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Status):
		if task, ok := v.selectedTask(); ok && v.focus == FocusTaskList {
			return v, v.cycleStatus(task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Priority):
		if task, ok := v.selectedTask(); ok && v.focus == FocusTaskList {
			return v, v.cyclePriority(task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Search):
		v.focus = FocusSearchInput
		v.searchInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Filter):
		v.focus = FocusTagDropdown
		v.tagDropdownOpen = true
		v.tagCursor = 0
		return v, nil

	case key.Matches(msg, v.keys.Tags):
		if task, ok := v.selectedTask(); ok && v.focus == FocusTaskList {
			v.startAssigningTags(task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Refresh):
		return v, v.loadTasks

	case key.Matches(msg, v.keys.Sort):
		v.sort = taskviews.NextSort(v.sort, v.nextSortKey())
		v.cursor = 0
		v.scrollY = 0
		return v, v.loadTasks

	case msg.String() == "?":
		v.showHelpPopup = true
		return v, nil

	case key.Matches(msg, v.keys.ShowCompleted):
		v.showingCompleted = !v.showingCompleted
		v.cursor = 0
		v.scrollY = 0
		return v, v.loadTasks
	}

	return v, nil
}

// sortCycle is the order o steps through sortable columns
var sortCycle = []taskviews.SortKey{taskviews.SortDueDate, taskviews.SortPriority, taskviews.SortStatus, taskviews.SortCreatedAt}

// nextSortKey keeps the current column until it has gone through both
// directions, then moves to the next one
func (v *TaskListView) nextSortKey() taskviews.SortKey {
	if v.sort.IsZero() {
		return sortCycle[0]
	}
	if v.sort.Dir == taskviews.Asc {
		return v.sort.Key
	}
	for i, k := range sortCycle {
		if k == v.sort.Key && i+1 < len(sortCycle) {
			return sortCycle[i+1]
		}
	}
	return v.sort.Key
}

func (v *TaskListView) updateTagDropdown(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.tagDropdownOpen = false
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.tagCursor > 0 {
			v.tagCursor--
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.tagCursor < len(v.tags) { // +1 for "None" option
			v.tagCursor++
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if v.tagCursor == 0 {
			v.selectedTag = ""
		} else {
			v.selectedTag = v.tags[v.tagCursor-1].ID
		}
		v.tagDropdownOpen = false
		v.cursor = 0
		v.scrollY = 0
		return v, v.loadTasks
	}

	return v, nil
}

func (v *TaskListView) confirmDelete(task models.Task) {
	v.confirmingDelete = true
	v.deleteTargetID = task.ID
	v.deleteTargetName = task.Title
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.viewingTask = false
		id := v.deleteTargetID
		return v, v.mutate("Task deleted", func(ctx context.Context) service.Result {
			return v.backend.Service.DeleteTask(ctx, v.session.ID, id)
		})
	case "n", "N", "esc":
		v.confirmingDelete = false
		return v, nil
	}
	return v, nil
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	task, ok := v.selectedTask()
	if !ok {
		v.viewingTask = false
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Back):
		v.viewingTask = false
		return v, nil
	case key.Matches(msg, v.keys.Edit):
		v.viewingTask = false
		v.startEditTask(task)
		return v, textinput.Blink
	case key.Matches(msg, v.keys.Delete):
		v.confirmDelete(task)
		return v, nil
	case key.Matches(msg, v.keys.Tags):
		v.viewingTask = false
		v.startAssigningTags(task)
		return v, nil
	case key.Matches(msg, v.keys.Status):
		return v, v.cycleStatus(task)
	case key.Matches(msg, v.keys.Priority):
		return v, v.cyclePriority(task)
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	}
	return v, nil
}

func (v *TaskListView) cycleStatus(task models.Task) tea.Cmd {
	next := task.Status.Next()
	return v.mutate("Status set to "+next.Label(), func(ctx context.Context) service.Result {
		return v.backend.Service.UpdateTaskStatus(ctx, v.session.ID, task.ID, next)
	})
}

func (v *TaskListView) cyclePriority(task models.Task) tea.Cmd {
	next := task.Priority.Next()
	return v.mutate("Priority set to "+next.Label(), func(ctx context.Context) service.Result {
		return v.backend.Service.UpdateTaskPriority(ctx, v.session.ID, task.ID, next)
	})
}

func (v *TaskListView) startAssigningTags(task models.Task) {
	v.assigningTags = true
	v.assignTagCursor = 0
	v.assigningTaskID = task.ID
}

func (v *TaskListView) updateAssigningTags(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.assigningTags = false
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.assignTagCursor > 0 {
			v.assignTagCursor--
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.assignTagCursor < len(v.tags)-1 {
			v.assignTagCursor++
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter), msg.String() == " ":
		idx := v.taskIndex(v.assigningTaskID)
		if idx < 0 || v.assignTagCursor >= len(v.tags) {
			return v, nil
		}
		task := v.tasks[idx]
		tagIDs := toggleID(task.TagIDs(), v.tags[v.assignTagCursor].ID)

		// A tag change is a full task update and is metered like one
		in := inputFromTask(task)
		in.TagIDs = tagIDs
		return v, v.mutate("Tags updated", func(ctx context.Context) service.Result {
			return v.backend.Service.UpdateTask(ctx, v.session.ID, task.ID, in)
		})
	}

	return v, nil
}

func inputFromTask(task models.Task) service.TaskInput {
	return service.TaskInput{
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		Status:      task.Status,
		TagIDs:      task.TagIDs(),
	}
}

// toggleID adds id to ids or removes it if already present
func toggleID(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.editing = false
		return v, nil

	case msg.String() == "ctrl+s":
		return v, v.saveTask()

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % editFieldCount
		v.updateEditFocus()
		return v, nil

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + editFieldCount - 1) % editFieldCount
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.editFocusIdx {
		case editFieldTitle, editFieldDue:
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		case editFieldPriority:
			v.editPriority = v.editPriority.Next()
			return v, nil
		case editFieldStatus:
			v.editStatus = v.editStatus.Next()
			return v, nil
		case editFieldTags:
			v.toggleEditTag()
			return v, nil
		case editFieldSave:
			return v, v.saveTask()
		}
		// Enter in the description adds a newline

	case msg.String() == " ":
		switch v.editFocusIdx {
		case editFieldPriority:
			v.editPriority = v.editPriority.Next()
			return v, nil
		case editFieldStatus:
			v.editStatus = v.editStatus.Next()
			return v, nil
		case editFieldTags:
			v.toggleEditTag()
			return v, nil
		}

	case key.Matches(msg, v.keys.Up):
		if v.editFocusIdx == editFieldTags && v.editTagCursor > 0 {
			v.editTagCursor--
			return v, nil
		}

	case key.Matches(msg, v.keys.Down):
		if v.editFocusIdx == editFieldTags && v.editTagCursor < len(v.tags)-1 {
			v.editTagCursor++
			return v, nil
		}
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case editFieldTitle:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case editFieldDesc:
		v.editDesc, cmd = v.editDesc.Update(msg)
	case editFieldDue:
		v.editDue, cmd = v.editDue.Update(msg)
	}
	return v, cmd
}

// toggleEditTag toggles the currently selected tag in the edit form
func (v *TaskListView) toggleEditTag() {
	if v.editTagCursor >= len(v.tags) {
		return
	}
	v.editTags = toggleID(v.editTags, v.tags[v.editTagCursor].ID)
}

func (v *TaskListView) cycleFocus(dir int) {
	v.searchInput.Blur()

	v.focus = FocusArea((int(v.focus) + dir + 4) % 4)

	if v.focus == FocusSearchInput {
		v.searchInput.Focus()
	}
}

func (v *TaskListView) ensureVisible() {
	visibleItems := v.visibleItems()

	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

// visibleItems is how many three-line task rows fit on screen
func (v *TaskListView) visibleItems() int {
	availableHeight := max(v.height-14, 3)
	return max(availableHeight/3, 1)
}

func (v *TaskListView) startNewTask() {
	v.editing = true
	v.editingNew = true
	v.editFocusIdx = editFieldTitle
	v.editTagCursor = 0
	v.editTags = []string{}
	v.editTitle.Reset()
	v.editDesc.Reset()
	v.editDue.Reset()
	v.editPriority = models.PriorityMedium
	v.editStatus = models.StatusNotStarted
	v.updateEditFocus()
}

func (v *TaskListView) startEditTask(task models.Task) {
	v.editing = true
	v.editingNew = false
	v.editFocusIdx = editFieldTitle
	v.editTagCursor = 0
	v.editTags = task.TagIDs()
	v.editTitle.SetValue(task.Title)
	v.editDesc.SetValue(task.Description)
	v.editDue.Reset()
	if task.DueDate != nil {
		v.editDue.SetValue(task.DueDate.Local().Format(dueLayout))
	}
	v.editPriority = task.Priority
	v.editStatus = task.Status
	v.updateEditFocus()
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	v.editDue.Blur()

	switch v.editFocusIdx {
	case editFieldTitle:
		v.editTitle.Focus()
	case editFieldDesc:
		v.editDesc.Focus()
	case editFieldDue:
		v.editDue.Focus()
	}
}

func (v *TaskListView) saveTask() tea.Cmd {
	in := service.TaskInput{
		Title:       strings.TrimSpace(v.editTitle.Value()),
		Description: strings.TrimSpace(v.editDesc.Value()),
		Priority:    v.editPriority,
		Status:      v.editStatus,
		TagIDs:      v.editTags,
	}

	if raw := strings.TrimSpace(v.editDue.Value()); raw != "" {
		due, err := time.ParseInLocation(dueLayout, raw, time.Local)
		if err != nil {
			v.statusMsg = "Choose a valid due date (YYYY-MM-DD)"
			v.statusIsErr = true
			return nil
		}
		in.DueDate = &due
	}

	if v.editingNew {
		return v.mutate("Task created", func(ctx context.Context) service.Result {
			return v.backend.Service.CreateTask(ctx, v.session.ID, in)
		})
	}

	task, ok := v.selectedTask()
	if !ok {
		v.editing = false
		return nil
	}
	return v.mutate("Task saved", func(ctx context.Context) service.Result {
		return v.backend.Service.UpdateTask(ctx, v.session.ID, task.ID, in)
	})
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if v.confirmingDelete {
		return v.renderDeleteConfirm()
	}

	if v.editing {
		return v.renderEditForm()
	}

	if v.viewingTask {
		return v.renderTaskView()
	}

	if v.assigningTags {
		return v.renderTagAssignment()
	}

	var b strings.Builder

	// Header with back button, search, and tag filter
	b.WriteString(v.renderHeader())
	b.WriteString("\n")
	b.WriteString(v.renderUsage())
	b.WriteString("\n\n")

	b.WriteString(v.renderTaskList())

	b.WriteString("\n")
	b.WriteString(v.renderStatus())
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	isNarrow := contentWidth < 60

	searchStyle := s.Input
	if v.focus == FocusSearchInput {
		searchStyle = s.InputFocused
	}
	searchWidth := clamp(contentWidth-8, 10, 30)
	v.searchInput.Placeholder = "Search..."
	searchBox := searchStyle.Width(searchWidth).Render(v.searchInput.View())

	tagStyle := s.Button
	if v.focus == FocusTagDropdown {
		tagStyle = s.ButtonFocused
	}
	tagLabel := "All"
	for _, t := range v.tags {
		if t.ID == v.selectedTag {
			tagLabel = t.Name
			break
		}
	}
	if !isNarrow {
		tagLabel = "Tags: " + tagLabel
	}
	tagBtn := tagStyle.Render(tagLabel + " ▼")

	titleText := "Session " + shortID(v.session.ID)
	if v.showingCompleted {
		titleText += " (Completed)"
	}
	if !v.sort.IsZero() {
		titleText += fmt.Sprintf(" • sorted by %s %s", v.sort.Key, v.sort.Dir)
	}
	title := s.Title.Render(titleText)

	var header string
	if isNarrow {
		header = lipgloss.JoinVertical(lipgloss.Left,
			searchBox,
			tagBtn,
		)
	} else {
		backStyle := s.Button
		if v.focus == FocusBackButton {
			backStyle = s.ButtonFocused
		}
		backBtn := backStyle.Render("← Sessions")

		header = lipgloss.JoinHorizontal(lipgloss.Center,
			backBtn, "  ", searchBox, "  ", tagBtn,
		)
	}

	dropdown := ""
	if v.tagDropdownOpen {
		dropdown = "\n" + v.renderTagDropdown()
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, header+dropdown)
}

// renderUsage shows how much of each quota the session has used
func (v *TaskListView) renderUsage() string {
	s := v.session
	sep := v.styles.TitleMuted.Render(" • ")
	meters := []string{
		styles.Meter("tasks", v.usage.Tasks, quota.TaskAliveLimit),
		styles.Meter("creates", s.TaskCreateCount, quota.TaskCreateLimit),
		styles.Meter("edits", s.TaskUpdateCount, quota.TaskUpdateLimit),
		styles.Meter("tags", v.usage.Tags, quota.TagAliveLimit),
		styles.Meter("tag edits", s.TagUpdateCount, quota.TagUpdateLimit),
	}
	return v.styles.StatusBar.Render(strings.Join(meters, sep))
}

func (v *TaskListView) renderStatus() string {
	if v.statusMsg == "" {
		return ""
	}
	if v.statusIsErr {
		return v.styles.StatusError.Render(v.statusMsg)
	}
	return v.styles.StatusBar.Foreground(styles.Current.Success).Render(v.statusMsg)
}

func (v *TaskListView) renderTagDropdown() string {
	s := v.styles
	var items []string

	noneStyle := s.ListItem
	if v.tagCursor == 0 {
		noneStyle = s.ListSelected
	}
	items = append(items, noneStyle.Render("None"))

	for i, tag := range v.tags {
		itemStyle := s.ListItem
		if v.tagCursor == i+1 {
			itemStyle = s.ListSelected
		}
		tagColor := lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color))
		items = append(items, itemStyle.Render(tagColor.Render("●")+" "+tag.Name))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, items...)
	return s.FilterBar.Render(content)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if len(v.tasks) == 0 {
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))

	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor && v.focus == FocusTaskList))
	}

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	width := max(contentWidth-4, 20)

	priority := lipgloss.NewStyle().Foreground(styles.PriorityColor(task.Priority)).Render("●")
	titleLine := priority + " " + task.Title

	meta := []string{
		lipgloss.NewStyle().Foreground(styles.StatusColor(task.Status)).Render(task.Status.Label()),
	}
	if task.DueDate != nil {
		meta = append(meta, "due "+task.DueDate.Local().Format("Jan 2"))
	}
	for _, tag := range task.Tags {
		meta = append(meta, lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color)).Render(tag.Name))
	}
	metaLine := strings.Join(meta, " • ")

	var titleStyle, metaStyle lipgloss.Style
	if selected {
		titleStyle = s.ListSelected.Width(width)
		metaStyle = s.ListSelected.Width(width)
	} else {
		titleStyle = s.ListItem.Width(width)
		metaStyle = s.ListItem.Width(width)
	}

	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(titleLine), metaStyle.Render(metaLine)) + "\n"
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	formTitle := "New Task"
	if !v.editingNew {
		formTitle = "Edit Task"
	}

	fieldStyle := func(idx int) lipgloss.Style {
		if v.editFocusIdx == idx {
			return s.InputFocused
		}
		return s.Input
	}
	btnStyle := s.Button
	if v.editFocusIdx == editFieldSave {
		btnStyle = s.ButtonFocused
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	priority := lipgloss.NewStyle().Foreground(styles.PriorityColor(v.editPriority)).Render(v.editPriority.Label())
	status := lipgloss.NewStyle().Foreground(styles.StatusColor(v.editStatus)).Render(v.editStatus.Label())

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(formTitle),
		"",
		"Title:",
		fieldStyle(editFieldTitle).Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Description:",
		fieldStyle(editFieldDesc).Render(v.editDesc.View()),
		"",
		"Due date:",
		fieldStyle(editFieldDue).Width(16).Render(v.editDue.View()),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Left, "Priority:", fieldStyle(editFieldPriority).Width(14).Render(priority)),
			"  ",
			lipgloss.JoinVertical(lipgloss.Left, "Status:", fieldStyle(editFieldStatus).Width(16).Render(status)),
		),
		"",
		"Tags:",
		v.renderEditTagSelector(fieldStyle(editFieldTags), inputWidth),
		"",
		btnStyle.Render(" Save "),
		"",
		v.renderStatus(),
		s.TitleMuted.Render("Tab: next • Space/↵: cycle or toggle • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}

// renderEditTagSelector renders the inline tag selector for the edit form
func (v *TaskListView) renderEditTagSelector(containerStyle lipgloss.Style, width int) string {
	s := v.styles

	if len(v.tags) == 0 {
		return containerStyle.Width(width).Render(s.TitleMuted.Render("No tags available"))
	}

	var items []string
	for i, tag := range v.tags {
		checkbox := "[ ]"
		for _, id := range v.editTags {
			if id == tag.ID {
				checkbox = "[x]"
				break
			}
		}

		tagColor := lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color))
		itemText := checkbox + " " + tagColor.Render("●") + " " + tag.Name

		if v.editFocusIdx == editFieldTags && i == v.editTagCursor {
			items = append(items, s.ListSelected.Render(itemText))
		} else {
			items = append(items, s.ListItem.Render(itemText))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, items...)
	return containerStyle.Width(width).Render(content)
}

func (v *TaskListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}

	completedLabel := "done"
	if v.showingCompleted {
		completedLabel = "open"
	}

	return v.styles.Help.Render(
		fmt.Sprintf("%s view • %s edit • %s new • %s del • %s status • %s priority • %s tags • %s search • %s filter • %s %s • %s back",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("e"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("d"),
			v.styles.HelpKey.Render("s"),
			v.styles.HelpKey.Render("p"),
			v.styles.HelpKey.Render("t"),
			v.styles.HelpKey.Render("/"),
			v.styles.HelpKey.Render("f"),
			v.styles.HelpKey.Render("c"),
			completedLabel,
			v.styles.HelpKey.Render("esc"),
		),
	)
}

func (v *TaskListView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	completedLabel := "show completed"
	if v.showingCompleted {
		completedLabel = "show open"
	}

	helpItems := []string{
		s.HelpKey.Render("↵") + "      view task",
		s.HelpKey.Render("e") + "      edit task",
		s.HelpKey.Render("n") + "      new task",
		s.HelpKey.Render("d") + "      delete task",
		s.HelpKey.Render("s") + "      next status",
		s.HelpKey.Render("p") + "      next priority",
		s.HelpKey.Render("t") + "      assign tags",
		s.HelpKey.Render("/") + "      search",
		s.HelpKey.Render("f") + "      filter by tag",
		s.HelpKey.Render("c") + "      " + completedLabel,
		s.HelpKey.Render("o") + "      cycle sort",
		s.HelpKey.Render("r") + "      refresh",
		s.HelpKey.Render("esc") + "    back",
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

func (v *TaskListView) renderTagAssignment() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	idx := v.taskIndex(v.assigningTaskID)
	if idx < 0 {
		return ""
	}
	task := v.tasks[idx]

	var items []string
	for i, tag := range v.tags {
		itemStyle := s.ListItem
		if i == v.assignTagCursor {
			itemStyle = s.ListSelected
		}

		checkbox := "[ ]"
		if task.HasTag(tag.ID) {
			checkbox = "[x]"
		}

		tagColor := lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color))
		items = append(items, itemStyle.Render(checkbox+" "+tagColor.Render("●")+" "+tag.Name))
	}
	if len(items) == 0 {
		items = append(items, s.TitleMuted.Render("No tags in this session"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Assign Tags to: "+task.Title),
		"",
		lipgloss.JoinVertical(lipgloss.Left, items...),
		"",
		v.renderStatus(),
		s.TitleMuted.Render("Enter/Space: toggle • Esc: done"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.FilterBar.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderDeleteConfirm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render("Delete Task?"),
		"",
		s.TitleMuted.Render(fmt.Sprintf("%q will be removed. Deleting does not refund the create limit.", v.deleteTargetName)),
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

func (v *TaskListView) renderTaskView() string {
	task, ok := v.selectedTask()
	if !ok {
		return ""
	}

	s := v.styles
	maxContentWidth := styles.ContentWidth(v.width)

	var tagStrs []string
	for _, tag := range task.Tags {
		tagStrs = append(tagStrs, lipgloss.NewStyle().Foreground(lipgloss.Color(tag.Color)).Render(tag.Name))
	}
	tagsLine := "None"
	if len(tagStrs) > 0 {
		tagsLine = strings.Join(tagStrs, " ")
	}

	descText := task.Description
	if descText == "" {
		descText = s.TitleMuted.Render("No description")
	}

	dueText := s.TitleMuted.Render("No due date")
	if task.DueDate != nil {
		dueText = task.DueDate.Local().Format("Mon Jan 2, 2006")
	}

	titleStyle := s.Title.MarginBottom(1)
	labelStyle := s.TitleMuted
	textWidth := clamp(maxContentWidth-10, 20, 70)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(task.Title),
		"",
		labelStyle.Render("Status"),
		lipgloss.NewStyle().Foreground(styles.StatusColor(task.Status)).Render(task.Status.Label()),
		"",
		labelStyle.Render("Priority"),
		s.TaskPriority.Foreground(styles.PriorityColor(task.Priority)).Render(task.Priority.Label()),
		"",
		labelStyle.Render("Due"),
		dueText,
		"",
		labelStyle.Render("Tags"),
		tagsLine,
		"",
		labelStyle.Render("Description"),
		lipgloss.NewStyle().Width(textWidth).Render(descText),
		"",
		labelStyle.Render("Updated"),
		task.UpdatedAt.Local().Format("Jan 2, 2006 3:04 PM"),
		"",
		v.renderStatus(),
		s.Help.Render(
			fmt.Sprintf("%s edit • %s status • %s priority • %s tags • %s delete • %s back",
				s.HelpKey.Render("e"),
				s.HelpKey.Render("s"),
				s.HelpKey.Render("p"),
				s.HelpKey.Render("t"),
				s.HelpKey.Render("d"),
				s.HelpKey.Render("esc"),
			),
		),
	)

	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
