// Package overdue tracks mirrored tasks that are still open so the calendar
// can flag them once their last day has passed.
package overdue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
)

type Entry struct {
	TaskID  string    `json:"task_id"`
	EventID string    `json:"event_id"`
	Summary string    `json:"summary"`
	Due     time.Time `json:"due"`
}

// Table is persisted under kv.KeyCalendarOverdue.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	store   kv.Store
	dirty   bool
}

func Load(ctx context.Context, store kv.Store) (*Table, error) {
	t := &Table{
		Entries: make(map[string]Entry),
		store:   store,
	}
	raw, ok, err := store.Get(ctx, kv.KeyCalendarOverdue)
	if err != nil {
		return nil, fmt.Errorf("read overdue table: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), t); err != nil {
			return nil, fmt.Errorf("failed to decode overdue table: %w", err)
		}
		if t.Entries == nil {
			t.Entries = make(map[string]Entry)
		}
	}
	return t, nil
}

func (t *Table) Save(ctx context.Context) error {
	if !t.dirty {
		return nil
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, kv.KeyCalendarOverdue, string(b)); err != nil {
		return fmt.Errorf("save overdue table: %w", err)
	}
	t.dirty = false
	return nil
}

// Update tracks an open task that is due at due. A zero due removes it.
func (t *Table) Update(taskID, eventID, summary string, due time.Time) {
	if due.IsZero() {
		t.Remove(taskID)
		return
	}
	old, exists := t.Entries[taskID]
	if !exists || !old.Due.Equal(due) || old.EventID != eventID || old.Summary != summary {
		t.Entries[taskID] = Entry{TaskID: taskID, EventID: eventID, Summary: summary, Due: due}
		t.dirty = true
	}
}

func (t *Table) Remove(taskID string) {
	if _, exists := t.Entries[taskID]; exists {
		delete(t.Entries, taskID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries due before now, oldest first.
func (t *Table) Sweep(now time.Time) []Entry {
	var swept []Entry
	for id, entry := range t.Entries {
		if entry.Due.Before(now) {
			swept = append(swept, entry)
			delete(t.Entries, id)
			t.dirty = true
		}
	}
	sort.Slice(swept, func(i, j int) bool {
		if !swept[i].Due.Equal(swept[j].Due) {
			return swept[i].Due.Before(swept[j].Due)
		}
		return swept[i].TaskID < swept[j].TaskID
	})
	return swept
}
