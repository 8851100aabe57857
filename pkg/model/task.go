package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus = errors.New("invalid task status")
	ErrInvalidType   = errors.New("invalid task type")
	ErrInvalidTask   = errors.New("invalid task")
)

// Status is the canonical task status. Server spellings are mapped by ParseStatus.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus accepts the canonical names and the legacy server spellings
// ("pending", "in_progress").
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "pending":
		return StatusTodo, nil
	case "in-progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Type is who a task is for.
type Type string

const (
	TypeAll      Type = ""
	TypePersonal Type = "personal"
	TypeChild    Type = "child"
	TypeFamily   Type = "family"
)

// ParseType maps "self" to personal and "all" (or empty) to TypeAll.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TypeAll, nil
	case "personal", "self":
		return TypePersonal, nil
	case "child":
		return TypeChild, nil
	case "family":
		return TypeFamily, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Task is a family task as the client sees it, in canonical vocabulary.
type Task struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Type        Type      `json:"type"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	Coins       int       `json:"coins"`
	IsRepeating bool      `json:"isRepeating"`
	ChildID     int64     `json:"childId,omitempty"`
	ChildName   string    `json:"childName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ActiveOn reports whether day (YYYY-MM-DD) falls within [StartDate, EndDate].
func (t Task) ActiveOn(day string) bool {
	start, err := NormalizeDay(t.StartDate)
	if err != nil {
		return false
	}
	end, err := NormalizeDay(t.EndDate)
	if err != nil {
		return false
	}
	return day >= start && day <= end
}

// Draft is the input for creating a task.
type Draft struct {
	Title       string
	Description string
	Type        Type
	Coins       int
	StartDate   string
	EndDate     string
	IsRepeating bool
	ChildID     int64
	ChildName   string
}

// Validate normalizes the draft in place and rejects it before any I/O.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if len(d.Title) > 255 {
		return fmt.Errorf("%w: title longer than 255 characters", ErrInvalidTask)
	}
	if len(d.Description) > 500 {
		return fmt.Errorf("%w: description longer than 500 characters", ErrInvalidTask)
	}
	if d.Coins < 0 {
		return fmt.Errorf("%w: coins must be >= 0", ErrInvalidTask)
	}
	if d.Type == TypeAll {
		d.Type = TypePersonal
	}
	typ, err := ParseType(string(d.Type))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	d.Type = typ

	start, err := NormalizeDay(d.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start date: %v", ErrInvalidTask, err)
	}
	end := start
	if d.EndDate != "" {
		if end, err = NormalizeDay(d.EndDate); err != nil {
			return fmt.Errorf("%w: end date: %v", ErrInvalidTask, err)
		}
	}
	if end < start {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidTask, end, start)
	}
	d.StartDate, d.EndDate = start, end
	return nil
}
