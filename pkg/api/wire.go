package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/model"
)

// wireTask is a task in the backend's vocabulary.
type wireTask struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Coins          int    `json:"coins"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	IsRepeating    bool   `json:"is_repeating"`
	ChildID        int64  `json:"child_id,omitempty"`
	ChildName      string `json:"child_name,omitempty"`
	AssignedToID   int64  `json:"assigned_to_id,omitempty"`
	AssignedToName string `json:"assigned_to_name,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Coins       int    `json:"coins"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	IsRepeating bool   `json:"is_repeating"`
	ChildID     int64  `json:"child_id,omitempty"`
	ChildName   string `json:"child_name,omitempty"`
}

type patchRequest struct {
	Status      *string `json:"status,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (w wireTask) toModel() (model.Task, error) {
	if w.ID <= 0 {
		return model.Task{}, fmt.Errorf("task without id")
	}
	status, err := model.ParseStatus(w.Status)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %d: %w", w.ID, err)
	}
	typ, err := model.ParseType(w.Type)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %d: %w", w.ID, err)
	}
	if typ == model.TypeAll {
		typ = model.TypePersonal
	}
	start, err := model.NormalizeDay(w.StartDate)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %d: %w", w.ID, err)
	}
	end, err := model.NormalizeDay(w.EndDate)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %d: %w", w.ID, err)
	}

	t := model.Task{
		ID:          model.RemoteID(w.ID),
		Title:       w.Title,
		Description: w.Description,
		Status:      status,
		Type:        typ,
		StartDate:   start,
		EndDate:     end,
		Coins:       w.Coins,
		IsRepeating: w.IsRepeating,
		ChildID:     w.ChildID,
		ChildName:   w.ChildName,
		CreatedAt:   parseTime(w.CreatedAt),
		UpdatedAt:   parseTime(w.UpdatedAt),
	}
	if t.ChildID == 0 {
		t.ChildID = w.AssignedToID
	}
	if t.ChildName == "" {
		t.ChildName = w.AssignedToName
	}
	return t, nil
}

func wireStatus(s model.Status) string {
	if s == model.StatusInProgress {
		return "in_progress"
	}
	return string(s)
}

func fromDraft(d model.Draft) createRequest {
	return createRequest{
		Title:       d.Title,
		Description: d.Description,
		Type:        string(d.Type),
		Coins:       d.Coins,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		IsRepeating: d.IsRepeating,
		ChildID:     d.ChildID,
		ChildName:   d.ChildName,
	}
}
