// Package colors hands out calendar colours per child so each child's tasks
// keep one colour across syncs.
package colors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
)

const (
	// Shared is used for tasks without a child.
	Shared = "8"
	// Google Calendar event colours 1..11, minus Shared.
	paletteSize = 11
)

type ChildState struct {
	ColorID      string    `json:"color_id"`
	ActiveTasks  int       `json:"active_tasks"`
	LastModified time.Time `json:"last_modified"`
}

// ColorCache is persisted under kv.KeyCalendarColors. When every colour is
// taken, the least recently used child without active tasks gives up its
// colour, falling back to the least recently used child overall.
type ColorCache struct {
	Children map[string]*ChildState `json:"children"`
	store    kv.Store
	now      func() time.Time
	dirty    bool
}

func Load(ctx context.Context, store kv.Store) (*ColorCache, error) {
	c := &ColorCache{
		Children: make(map[string]*ChildState),
		store:    store,
		now:      time.Now,
	}
	raw, ok, err := store.Get(ctx, kv.KeyCalendarColors)
	if err != nil {
		return nil, fmt.Errorf("read colour cache: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &c.Children); err != nil {
			return nil, fmt.Errorf("failed to decode colour cache: %w", err)
		}
		if c.Children == nil {
			c.Children = make(map[string]*ChildState)
		}
	}
	return c, nil
}

func (c *ColorCache) Save(ctx context.Context) error {
	if !c.dirty {
		return nil
	}
	b, err := json.Marshal(c.Children)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, kv.KeyCalendarColors, string(b)); err != nil {
		return fmt.Errorf("save colour cache: %w", err)
	}
	c.dirty = false
	return nil
}

// ResetActive zeroes every active count before a sync recounts them.
func (c *ColorCache) ResetActive() {
	for _, s := range c.Children {
		if s.ActiveTasks != 0 {
			s.ActiveTasks = 0
			c.dirty = true
		}
	}
}

// ColorID returns the colour for child. active counts the task toward the
// child's active total.
func (c *ColorCache) ColorID(child string, active bool) string {
	if child == "" {
		return Shared
	}

	state, exists := c.Children[child]
	if !exists {
		state = c.assign(child)
	}
	state.LastModified = c.now()
	if active {
		state.ActiveTasks++
	}
	c.dirty = true
	return state.ColorID
}

func (c *ColorCache) assign(child string) *ChildState {
	used := make(map[string]bool)
	for _, s := range c.Children {
		used[s.ColorID] = true
	}

	for i := 1; i <= paletteSize; i++ {
		id := strconv.Itoa(i)
		if id == Shared || used[id] {
			continue
		}
		s := &ChildState{ColorID: id}
		c.Children[child] = s
		return s
	}

	victim := c.leastRecent(true)
	if victim == "" {
		victim = c.leastRecent(false)
	}
	s := &ChildState{ColorID: c.Children[victim].ColorID}
	delete(c.Children, victim)
	c.Children[child] = s
	return s
}

func (c *ColorCache) leastRecent(idleOnly bool) string {
	var oldest string
	var oldestTime time.Time
	for name, s := range c.Children {
		if idleOnly && s.ActiveTasks > 0 {
			continue
		}
		if oldest == "" || s.LastModified.Before(oldestTime) ||
			(s.LastModified.Equal(oldestTime) && name < oldest) {
			oldest, oldestTime = name, s.LastModified
		}
	}
	return oldest
}
