// Package index remembers which calendar event mirrors which task.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/harrisonrobin/famtasks/pkg/kv"
)

// EventIndex maps a task's canonical id to its calendar event id. It is kept
// under kv.KeyCalendarIndex.
type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	store    kv.Store
	mu       sync.RWMutex
	dirty    bool
}

func Load(ctx context.Context, store kv.Store) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		store:    store,
	}
	raw, ok, err := store.Get(ctx, kv.KeyCalendarIndex)
	if err != nil {
		return nil, fmt.Errorf("read event index: %w", err)
	}
	if !ok {
		return idx, nil
	}
	if err := json.Unmarshal([]byte(raw), &idx.Mappings); err != nil {
		return nil, fmt.Errorf("failed to decode event index: %w", err)
	}
	if idx.Mappings == nil {
		idx.Mappings = make(map[string]string)
	}
	return idx, nil
}

// Save writes the index back if it changed since the last Load or Save.
func (idx *EventIndex) Save(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	b, err := json.Marshal(idx.Mappings)
	if err != nil {
		return err
	}
	if err := idx.store.Set(ctx, kv.KeyCalendarIndex, string(b)); err != nil {
		return fmt.Errorf("save event index: %w", err)
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(taskID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[taskID]
}

func (idx *EventIndex) Set(taskID, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[taskID] != eventID {
		idx.Mappings[taskID] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[taskID]; exists {
		delete(idx.Mappings, taskID)
		idx.dirty = true
	}
}

// Rename moves an entry to a new task id, used when a local task receives
// its backend id.
func (idx *EventIndex) Rename(from, to string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ev, ok := idx.Mappings[from]
	if !ok || from == to {
		return
	}
	delete(idx.Mappings, from)
	idx.Mappings[to] = ev
	idx.dirty = true
}

// TaskIDs lists every indexed task id in sorted order.
func (idx *EventIndex) TaskIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.Mappings))
	for id := range idx.Mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
