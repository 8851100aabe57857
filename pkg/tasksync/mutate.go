package tasksync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/model"
)

// mutation tracks one optimistic edit of a task.
type mutation struct {
	key  string
	rev  uint64
	done bool
}

// beginLocked records a new edit of key. Later edits of the same key
// supersede earlier ones.
func (e *Engine) beginLocked(key string) *mutation {
	e.revs[key]++
	e.pending[key]++
	return &mutation{key: key, rev: e.revs[key]}
}

// finish marks m as no longer in flight. It is safe to call twice.
func (e *Engine) finish(m *mutation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m.done {
		return
	}
	m.done = true
	if e.pending[m.key]--; e.pending[m.key] <= 0 {
		delete(e.pending, m.key)
	}
}

func (e *Engine) latest(m *mutation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revs[m.key] == m.rev
}

// UpdateStatus sets a task's status. The change is visible and cached before
// the backend is asked. On failure the previous status is restored and the
// list reloaded, unless a newer edit of the same task has been issued since.
func (e *Engine) UpdateStatus(ctx context.Context, id model.ID, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	id = e.canonical(id)

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, ErrUnknownTask)
	}
	prev := e.tasks[i].Status
	e.tasks[i].Status = status
	e.tasks[i].UpdatedAt = e.now()
	e.version++
	m := e.beginLocked(id.String())
	e.mu.Unlock()
	defer e.finish(m)

	e.persist(ctx)
	e.changed()

	if id.IsLocal() {
		return nil
	}

	unlock := sync.OnceFunc(e.locks.Lock(m.key))
	defer unlock()

	if !e.latest(m) {
		return nil
	}

	err := e.remote.UpdateTask(ctx, id.Remote, api.Patch{Status: &status})
	if err != nil {
		e.checkUnauthorized(ctx, err)
		undone := e.rollback(ctx, m, func() {
			if i := e.indexLocked(id); i >= 0 && e.tasks[i].Status == status {
				e.tasks[i].Status = prev
			}
		})
		// The task lock is released before reloading: an upload in the
		// running Load may be waiting for it.
		unlock()
		if undone {
			e.reload(ctx)
		}
		return fmt.Errorf("update task %s: %w", id, err)
	}

	fresh, err := e.remote.GetTask(ctx, id.Remote)
	if err != nil {
		e.logger.Printf("tasksync: refetch task %s: %v", id, err)
		return nil
	}
	e.mu.Lock()
	applied := false
	if e.revs[m.key] == m.rev {
		if i := e.indexLocked(id); i >= 0 {
			e.tasks[i] = fresh
			e.version++
			applied = true
		}
	}
	e.mu.Unlock()
	if applied {
		e.persist(ctx)
		e.changed()
	}
	return nil
}

// DeleteTask removes a task. It reports whether the backend accepted the
// delete; on failure the task is restored and the list reloaded.
func (e *Engine) DeleteTask(ctx context.Context, id model.ID) (bool, error) {
	id = e.canonical(id)

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return false, fmt.Errorf("task %s: %w", id, ErrUnknownTask)
	}
	removed := e.tasks[i]
	e.tasks = slices.Delete(e.tasks, i, i+1)
	e.version++
	m := e.beginLocked(id.String())
	e.mu.Unlock()
	defer e.finish(m)

	e.persist(ctx)
	e.changed()

	if id.IsLocal() {
		return true, nil
	}

	unlock := sync.OnceFunc(e.locks.Lock(m.key))
	defer unlock()

	if err := e.remote.DeleteTask(ctx, id.Remote); err != nil {
		e.checkUnauthorized(ctx, err)
		undone := e.rollback(ctx, m, func() {
			if e.indexLocked(id) < 0 {
				at := min(i, len(e.tasks))
				e.tasks = slices.Insert(e.tasks, at, removed)
			}
		})
		unlock()
		if undone {
			e.reload(ctx)
		}
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	return true, nil
}

// rollback undoes a failed edit unless it was superseded, and reports
// whether it did. The caller reloads afterwards.
func (e *Engine) rollback(ctx context.Context, m *mutation, undo func()) bool {
	e.mu.Lock()
	if e.revs[m.key] != m.rev {
		e.mu.Unlock()
		return false
	}
	undo()
	e.version++
	e.mu.Unlock()
	e.persist(ctx)

	// Released first so the reload takes the backend's value for this task.
	e.finish(m)
	e.changed()
	return true
}

// CreateTask validates d and creates the task. With a session the backend
// creates it; without one it gets a local handle and is uploaded by a later
// Load.
func (e *Engine) CreateTask(ctx context.Context, d model.Draft) (model.Task, error) {
	if err := d.Validate(); err != nil {
		return model.Task{}, err
	}

	var task model.Task
	_, err := e.session.Token(ctx)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		now := e.now()
		task = model.Task{
			ID:          model.NewLocalID(),
			Title:       d.Title,
			Description: d.Description,
			Status:      model.StatusTodo,
			Type:        d.Type,
			StartDate:   d.StartDate,
			EndDate:     d.EndDate,
			Coins:       d.Coins,
			IsRepeating: d.IsRepeating,
			ChildID:     d.ChildID,
			ChildName:   d.ChildName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	case err != nil:
		return model.Task{}, err
	default:
		task, err = e.remote.CreateTask(ctx, d)
		if err != nil {
			e.checkUnauthorized(ctx, err)
			return model.Task{}, fmt.Errorf("create task: %w", err)
		}
	}

	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.loaded = true
	e.version++
	e.mu.Unlock()

	e.persist(ctx)
	e.changed()
	return task, nil
}
