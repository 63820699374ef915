package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/models"
	"github.com/tgienger/taskdemo/internal/quota"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/views"
)

const dateLayout = "2006-01-02"

var errInvalidDue = errors.New("invalid due date")

// taskRequest is the wire form of a task. The due date may be a full
// RFC 3339 timestamp or a bare date.
type taskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DueDate     *string  `json:"dueDate"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	TagIDs      []string `json:"tagIds"`
}

func (r taskRequest) input() (service.TaskInput, error) {
	in := service.TaskInput{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Priority:    models.Priority(r.Priority),
		Status:      models.Status(r.Status),
		TagIDs:      r.TagIDs,
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.Status == "" {
		in.Status = models.StatusNotStarted
	}

	if r.DueDate != nil && strings.TrimSpace(*r.DueDate) != "" {
		due, err := parseDue(strings.TrimSpace(*r.DueDate))
		if err != nil {
			return in, err
		}
		in.DueDate = &due
	}
	return in, nil
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDue
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

// respond writes a mutation Result with the status code matching its kind
func respond(c *gin.Context, r service.Result, okStatus int) {
	if r.Success {
		c.JSON(okStatus, r)
		return
	}

	status := http.StatusInternalServerError
	switch r.Kind {
	case service.KindValidation, service.KindInvalidReference:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindQuota:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, r)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
		"kind":    service.KindValidation,
	})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		slog.String("path", c.Request.URL.Path),
		slog.String("session", sessionID(c)),
		slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   msg,
	})
}

// Session

func (s *Server) handleSession(c *gin.Context) {
	sess, _ := sessionFrom(c)

	usage, err := s.views.Usage(c.Request.Context(), sess.ID)
	if err != nil {
		s.internalError(c, "Failed to load session", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"limits":  quota.Default(),
		"usage":   usage,
	})
}

// Tasks

func (s *Server) handleListTasks(c *gin.Context) {
	list, err := s.views.TaskList(c.Request.Context(), sessionID(c), views.Filters{
		Status: models.Status(c.Query("status")),
		TagID:  c.Query("tag"),
		Query:  c.Query("q"),
	})
	if errors.Is(err, views.ErrInvalidFilter) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		s.internalError(c, "Failed to load tasks", err)
		return
	}

	sortCfg, ok := parseSort(c.Query("sort"), c.Query("dir"))
	if !ok {
		badRequest(c, "Choose a valid sort")
		return
	}
	if !sortCfg.IsZero() {
		sorted := *list
		sorted.Tasks = views.SortTasks(list.Tasks, sortCfg)
		list = &sorted
	}
	c.JSON(http.StatusOK, list)
}

// parseSort reads an optional column sort. The direction defaults to ascending.
func parseSort(key, dir string) (views.SortConfig, bool) {
	if key == "" {
		return views.SortConfig{}, true
	}
	cfg := views.SortConfig{Key: views.SortKey(key), Dir: views.SortDir(dir)}
	switch cfg.Key {
	case views.SortDueDate, views.SortPriority, views.SortStatus, views.SortCreatedAt:
	default:
		return cfg, false
	}
	switch cfg.Dir {
	case "":
		cfg.Dir = views.Asc
	case views.Asc, views.Desc:
	default:
		return cfg, false
	}
	return cfg, true
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.views.Task(c.Request.Context(), sessionID(c), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Task not found", "kind": service.KindNotFound})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to load task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid task payload")
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, "Choose a valid due date")
		return
	}

	respond(c, s.service.CreateTask(c.Request.Context(), sessionID(c), in), http.StatusCreated)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid task payload")
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, "Choose a valid due date")
		return
	}

	respond(c, s.service.UpdateTask(c.Request.Context(), sessionID(c), c.Param("id"), in), http.StatusOK)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Choose a valid status")
		return
	}

	result := s.service.UpdateTaskStatus(c.Request.Context(), sessionID(c), c.Param("id"), models.Status(req.Status))
	respond(c, result, http.StatusOK)
}

func (s *Server) handleUpdatePriority(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Choose a valid priority")
		return
	}

	result := s.service.UpdateTaskPriority(c.Request.Context(), sessionID(c), c.Param("id"), models.Priority(req.Priority))
	respond(c, result, http.StatusOK)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	respond(c, s.service.DeleteTask(c.Request.Context(), sessionID(c), c.Param("id")), http.StatusOK)
}

// Tags

func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.views.Tags(c.Request.Context(), sessionID(c))
	if err != nil {
		s.internalError(c, "Failed to load tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) handleCreateTag(c *gin.Context) {
	var in service.TagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid tag payload")
		return
	}
	respond(c, s.service.CreateTag(c.Request.Context(), sessionID(c), in), http.StatusCreated)
}

func (s *Server) handleUpdateTag(c *gin.Context) {
	var in service.TagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid tag payload")
		return
	}
	respond(c, s.service.UpdateTag(c.Request.Context(), sessionID(c), c.Param("id"), in), http.StatusOK)
}

func (s *Server) handleDeleteTag(c *gin.Context) {
	respond(c, s.service.DeleteTag(c.Request.Context(), sessionID(c), c.Param("id")), http.StatusOK)
}

// Views

func (s *Server) handleDashboard(c *gin.Context) {
	d, err := s.views.Dashboard(c.Request.Context(), sessionID(c))
	if err != nil {
		s.internalError(c, "Failed to load dashboard", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleReports(c *gin.Context) {
	r, err := s.views.Reports(c.Request.Context(), sessionID(c))
	if err != nil {
		s.internalError(c, "Failed to load reports", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleCalendar(c *gin.Context) {
	cal, err := s.views.Calendar(c.Request.Context(), sessionID(c))
	if err != nil {
		s.internalError(c, "Failed to load calendar", err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

func (s *Server) handleActivity(c *gin.Context) {
	a, err := s.views.Activity(c.Request.Context(), sessionID(c))
	if err != nil {
		s.internalError(c, "Failed to load activity", err)
		return
	}
	c.JSON(http.StatusOK, a)
}
