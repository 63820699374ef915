package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tgienger/taskdemo/internal/models"
)

var errInvalidInput = errors.New("invalid input")

// inputError is a user-facing validation message that matches errInvalidInput
type inputError string

func (e inputError) Error() string        { return string(e) }
func (e inputError) Is(target error) bool { return target == errInvalidInput }

// TaskInput holds the mutable fields of a task
type TaskInput struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	DueDate     *time.Time      `json:"dueDate"`
	Priority    models.Priority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Status      models.Status   `json:"status" validate:"required,oneof=NOT_STARTED IN_PROGRESS OVERDUE DONE"`
	TagIDs      []string        `json:"tagIds" validate:"omitempty,dive,max=128"`
}

// TagInput holds the mutable fields of a tag
type TagInput struct {
	Name  string `json:"name" validate:"required,max=32"`
	Color string `json:"color" validate:"required,len=7,hexcolor"`
}

type idInput struct {
	SessionID string `validate:"required"`
	ID        string `validate:"required,max=128"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (s *Service) checkTask(sessionID string, in *TaskInput) error {
	if sessionID == "" {
		return inputError("Session is required")
	}
	return s.validate.Struct(in)
}

func (s *Service) checkTag(sessionID string, in *TagInput) error {
	if sessionID == "" {
		return inputError("Session is required")
	}
	in.Name = strings.TrimSpace(in.Name)
	return s.validate.Struct(in)
}

func (s *Service) checkID(sessionID, id string) error {
	return s.validate.Struct(idInput{SessionID: sessionID, ID: id})
}

// describe turns validator output into one user-facing sentence per field
func describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() + "." + fe.Tag() {
	case "title.required":
		return "Title is required"
	case "title.max":
		return "Keep it under 200 characters"
	case "description.max":
		return "Keep descriptions under 2,000 characters"
	case "name.required":
		return "Name is required"
	case "name.max":
		return "Keep tag names under 32 characters"
	case "color.required", "color.len", "color.hexcolor":
		return "Choose a valid HEX color"
	case "priority.required", "priority.oneof":
		return "Choose a valid priority"
	case "status.required", "status.oneof":
		return "Choose a valid status"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
