package google

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/model"
	"google.golang.org/api/calendar/v3"
)

const (
	dayLayout = "2006-01-02"
	// taskIDProperty is the private extended property linking an event to
	// its task.
	taskIDProperty = "famtasks_id"
)

var descriptionID = regexp.MustCompile(`(?m)^ID: (\S+)$`)

// Summary prefixes a task title with a marker for its state on today.
func Summary(t model.Task, today string) string {
	var prefix string
	switch {
	case t.Status == model.StatusCompleted:
		prefix = "✓"
	case t.Status == model.StatusCancelled:
		prefix = "✗"
	case t.Status == model.StatusInProgress:
		prefix = "‣"
	case t.EndDate != "" && t.EndDate < today:
		prefix = "!"
	}
	if prefix == "" {
		return t.Title
	}
	return prefix + " " + t.Title
}

// Open reports whether a task still needs doing.
func Open(t model.Task) bool {
	return t.Status == model.StatusTodo || t.Status == model.StatusInProgress
}

// Due is the first instant after the task's last day, in loc.
func Due(t model.Task, loc *time.Location) time.Time {
	end, err := time.ParseInLocation(dayLayout, t.EndDate, loc)
	if err != nil {
		return time.Time{}
	}
	return end.AddDate(0, 0, 1)
}

// EventFromTask builds the all-day event mirroring t. today decides the
// overdue marker.
func EventFromTask(t model.Task, colorID, today string) (*calendar.Event, error) {
	if t.ID.IsZero() {
		return nil, fmt.Errorf("could not convert task without id")
	}
	start, err := model.NormalizeDay(t.StartDate)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	endDay, err := model.NormalizeDay(t.EndDate)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	end, _ := time.Parse(dayLayout, endDay)

	var desc strings.Builder
	fmt.Fprintf(&desc, "Type: %s", t.Type)
	if t.ChildName != "" {
		fmt.Fprintf(&desc, " (%s)", t.ChildName)
	}
	fmt.Fprintf(&desc, "\nStatus: %s\n", t.Status)
	if t.Coins > 0 {
		fmt.Fprintf(&desc, "Coins: %d\n", t.Coins)
	}
	if t.IsRepeating {
		desc.WriteString("Repeats daily\n")
	}
	fmt.Fprintf(&desc, "ID: %s\n", t.ID)
	if note := strings.TrimSpace(t.Description); note != "" {
		desc.WriteString("\nNotes:\n")
		for _, line := range strings.Split(note, "\n") {
			fmt.Fprintf(&desc, "‣ %s\n", line)
		}
	}

	return &calendar.Event{
		Summary:     Summary(t, today),
		Description: desc.String(),
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{Date: start},
		// All-day end dates are exclusive.
		End: &calendar.EventDateTime{Date: end.AddDate(0, 0, 1).Format(dayLayout)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: t.ID.String()},
		},
	}, nil
}

// EventNeedsUpdate returns a patch carrying the fields of target that differ
// from existing, or nil when they match.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if eventDay(existing.Start) != eventDay(target.Start) || eventDay(existing.End) != eventDay(target.End) ||
		existing.Start == nil || existing.Start.DateTime != "" {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}
	if target.ExtendedProperties != nil {
		id := target.ExtendedProperties.Private[taskIDProperty]
		if existing.ExtendedProperties == nil || existing.ExtendedProperties.Private[taskIDProperty] != id {
			patch.ExtendedProperties = target.ExtendedProperties
			needsUpdate = true
		}
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func eventDay(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	if day, err := model.NormalizeDay(dt.DateTime); err == nil {
		return day
	}
	return ""
}

// TaskIDFromEvent finds the task an event mirrors, from its private property
// or, for events edited by hand, the ID line of its description.
func TaskIDFromEvent(ev *calendar.Event) (model.ID, bool) {
	raw := ""
	if ev.ExtendedProperties != nil {
		raw = ev.ExtendedProperties.Private[taskIDProperty]
	}
	if raw == "" {
		if m := descriptionID.FindStringSubmatch(ev.Description); len(m) > 1 {
			raw = m[1]
		}
	}
	id, err := model.ParseID(raw)
	if err != nil {
		return model.ID{}, false
	}
	return id, true
}
