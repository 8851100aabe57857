package tasksync

import (
	"context"
	"errors"

	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/model"
)

// reconcile uploads tasks that were created without a session. Each one is
// replaced in place by the backend's task and its local handle is kept as an
// alias. Tasks the backend refuses stay local.
func (e *Engine) reconcile(ctx context.Context) error {
	e.mu.Lock()
	var locals []model.Task
	for _, t := range e.tasks {
		if t.ID.IsLocal() {
			locals = append(locals, t)
		}
	}
	e.mu.Unlock()

	for _, t := range locals {
		err := e.upload(ctx, t)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrInvalidTask), errors.Is(err, api.ErrRejected):
			e.logger.Printf("tasksync: keeping %s local: %v", t.ID, err)
		default:
			return err
		}
	}
	return nil
}

func (e *Engine) upload(ctx context.Context, t model.Task) error {
	unlock := e.locks.Lock(t.ID.Local)
	defer unlock()

	e.mu.Lock()
	_, uploaded := e.aliases[t.ID.Local]
	e.mu.Unlock()
	if uploaded {
		return nil
	}

	d := model.Draft{
		Title:       t.Title,
		Description: t.Description,
		Type:        t.Type,
		Coins:       t.Coins,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		IsRepeating: t.IsRepeating,
		ChildID:     t.ChildID,
		ChildName:   t.ChildName,
	}
	if err := d.Validate(); err != nil {
		return err
	}
	created, err := e.remote.CreateTask(ctx, d)
	if err != nil {
		e.checkUnauthorized(ctx, err)
		return err
	}

	e.mu.Lock()
	e.aliases[t.ID.Local] = created.ID
	i := e.indexLocked(t.ID)
	if i < 0 {
		e.mu.Unlock()
		// Deleted locally while the upload was in flight.
		if err := e.remote.DeleteTask(ctx, created.ID.Remote); err != nil {
			e.logger.Printf("tasksync: delete uploaded task %s: %v", created.ID, err)
		}
		return nil
	}
	want, server := e.tasks[i].Status, created.Status
	created.Status = want
	e.tasks[i] = created
	e.version++
	// A status set while offline is carried over like any other edit, so a
	// newer edit of the uploaded task supersedes it.
	var carry *mutation
	if want != server {
		carry = e.beginLocked(created.ID.String())
	}
	e.mu.Unlock()

	e.persist(ctx)
	e.changed()
	e.logger.Printf("tasksync: uploaded %s as task %s", t.ID, created.ID)

	if carry == nil {
		return nil
	}
	defer e.finish(carry)
	unlockRemote := e.locks.Lock(carry.key)
	defer unlockRemote()
	if !e.latest(carry) {
		return nil
	}
	// upload runs inside Load, so a failed patch is only logged.
	if err := e.remote.UpdateTask(ctx, created.ID.Remote, api.Patch{Status: &want}); err != nil {
		e.checkUnauthorized(ctx, err)
		e.logger.Printf("tasksync: carry status of %s: %v", t.ID, err)
	}
	return nil
}
