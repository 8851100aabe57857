package google

import (
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/model"
	"google.golang.org/api/calendar/v3"
)

func TestEventFromTask(t *testing.T) {
	task := model.Task{
		ID:          model.RemoteID(42),
		Title:       "Tidy room",
		Description: "Toys in the box\nBooks on the shelf",
		Status:      model.StatusTodo,
		Type:        model.TypeChild,
		StartDate:   "2024-01-10",
		EndDate:     "2024-01-12",
		Coins:       10,
		IsRepeating: true,
		ChildName:   "Misha",
	}

	event, err := EventFromTask(task, "3", "2024-01-11")
	if err != nil {
		t.Fatalf("EventFromTask failed: %v", err)
	}

	if event.ExtendedProperties == nil || event.ExtendedProperties.Private == nil {
		t.Fatal("ExtendedProperties or Private map is nil")
	}
	if val := event.ExtendedProperties.Private[taskIDProperty]; val != "42" {
		t.Errorf("Expected %s 42, got %q", taskIDProperty, val)
	}
	if event.Start.Date != "2024-01-10" || event.End.Date != "2024-01-13" {
		t.Errorf("Expected all-day 2024-01-10..2024-01-13, got %s..%s", event.Start.Date, event.End.Date)
	}
	if event.Summary != "Tidy room" {
		t.Errorf("Expected plain summary, got %q", event.Summary)
	}
	if event.ColorId != "3" {
		t.Errorf("Expected colour 3, got %q", event.ColorId)
	}
	for _, want := range []string{"Type: child (Misha)", "Coins: 10", "Repeats daily", "ID: 42", "‣ Books on the shelf"} {
		if !strings.Contains(event.Description, want) {
			t.Errorf("Expected description to contain %q, got: %s", want, event.Description)
		}
	}

	id, ok := TaskIDFromEvent(event)
	if !ok || id != model.RemoteID(42) {
		t.Errorf("Expected to read back task 42, got %v %v", id, ok)
	}
}

func TestSummaryMarkers(t *testing.T) {
	base := model.Task{Title: "Dishes", EndDate: "2024-01-10"}
	cases := []struct {
		status model.Status
		today  string
		want   string
	}{
		{model.StatusTodo, "2024-01-10", "Dishes"},
		{model.StatusTodo, "2024-01-11", "! Dishes"},
		{model.StatusInProgress, "2024-01-11", "‣ Dishes"},
		{model.StatusCompleted, "2024-01-11", "✓ Dishes"},
		{model.StatusCancelled, "2024-01-09", "✗ Dishes"},
	}
	for _, c := range cases {
		base.Status = c.status
		if got := Summary(base, c.today); got != c.want {
			t.Errorf("Summary(%s, %s) = %q, want %q", c.status, c.today, got, c.want)
		}
	}
}

func TestEventNeedsUpdate(t *testing.T) {
	task := model.Task{ID: model.RemoteID(1), Title: "Dishes", Status: model.StatusTodo, StartDate: "2024-01-10", EndDate: "2024-01-10"}
	target, err := EventFromTask(task, "1", "2024-01-10")
	if err != nil {
		t.Fatal(err)
	}
	existing := *target
	if patch := EventNeedsUpdate(&existing, target); patch != nil {
		t.Errorf("Expected no patch for identical events, got %+v", patch)
	}

	existing.Start = &calendar.EventDateTime{DateTime: "2024-01-10T09:00:00Z"}
	existing.Summary = "old"
	patch := EventNeedsUpdate(&existing, target)
	if patch == nil {
		t.Fatal("Expected a patch")
	}
	if patch.Summary != "Dishes" || patch.Start.Date != "2024-01-10" || patch.Description != "" {
		t.Errorf("Unexpected patch %+v", patch)
	}
}

func TestTaskIDFromDescription(t *testing.T) {
	ev := &calendar.Event{Description: "Type: family\nStatus: todo\nID: local-5f0c\n"}
	id, ok := TaskIDFromEvent(ev)
	if !ok || id.Local != "local-5f0c" {
		t.Errorf("Expected local-5f0c, got %v %v", id, ok)
	}
	if _, ok := TaskIDFromEvent(&calendar.Event{Description: "lunch"}); ok {
		t.Error("Expected no id for an unrelated event")
	}
}

func TestDue(t *testing.T) {
	due := Due(model.Task{EndDate: "2024-01-12"}, time.UTC)
	if !due.Equal(time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected due %v", due)
	}
	if !Due(model.Task{}, time.UTC).IsZero() {
		t.Error("Expected zero due without an end date")
	}
}
