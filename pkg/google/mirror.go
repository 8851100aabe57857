package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/colors"
	"github.com/harrisonrobin/famtasks/pkg/index"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"github.com/harrisonrobin/famtasks/pkg/overdue"
	"google.golang.org/api/calendar/v3"
)

// Mirror keeps one calendar event per task.
type Mirror struct {
	cal     *CalendarClient
	index   *index.EventIndex
	colors  *colors.ColorCache
	overdue *overdue.Table
	logger  *log.Logger
	now     func() time.Time
}

type Report struct {
	Synced  int
	Deleted int
	Failed  []error
}

func NewMirror(cal *CalendarClient, idx *index.EventIndex, cc *colors.ColorCache, table *overdue.Table, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirror{cal: cal, index: idx, colors: cc, overdue: table, logger: logger, now: time.Now}
}

// Sync creates or updates an event for every task and deletes the events of
// tasks that are gone. aliases renames index entries of local tasks that
// have since received a backend id.
func (m *Mirror) Sync(ctx context.Context, tasks []model.Task, aliases map[string]model.ID) (Report, error) {
	var report Report
	now := m.now()
	today := now.Format(dayLayout)

	for local, remote := range aliases {
		m.index.Rename(local, remote.String())
		m.overdue.Remove(local)
	}

	m.colors.ResetActive()
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		key := t.ID.String()
		seen[key] = true

		ev, err := EventFromTask(t, m.colors.ColorID(t.ChildName, Open(t)), today)
		if err != nil {
			report.Failed = append(report.Failed, err)
			continue
		}
		synced, err := m.cal.SyncEvent(ctx, key, ev)
		if err != nil {
			report.Failed = append(report.Failed, fmt.Errorf("task %s: %w", key, err))
			continue
		}
		report.Synced++

		if due := Due(t, now.Location()); Open(t) && due.After(now) {
			m.overdue.Update(key, synced.Id, t.Title, due)
		} else {
			m.overdue.Remove(key)
		}
	}

	for _, key := range m.index.TaskIDs() {
		if seen[key] {
			continue
		}
		if err := m.cal.DeleteEvent(ctx, m.index.Get(key)); err != nil {
			report.Failed = append(report.Failed, err)
			continue
		}
		m.index.Remove(key)
		m.overdue.Remove(key)
		report.Deleted++
	}

	if len(report.Failed) > 0 {
		m.logger.Printf("calendar: %d of %d tasks failed to sync", len(report.Failed), len(tasks))
	}
	return report, m.save(ctx)
}

// FlagOverdue marks the events of open tasks whose last day has passed
// since the previous sync. It needs no task list.
func (m *Mirror) FlagOverdue(ctx context.Context) (int, error) {
	var errs []error
	flagged := 0
	for _, e := range m.overdue.Sweep(m.now()) {
		if _, err := m.cal.PatchEvent(ctx, e.EventID, &calendar.Event{Summary: "! " + e.Summary}); err != nil {
			errs = append(errs, err)
			continue
		}
		flagged++
	}
	errs = append(errs, m.save(ctx))
	return flagged, errors.Join(errs...)
}

func (m *Mirror) save(ctx context.Context) error {
	return errors.Join(
		m.index.Save(ctx),
		m.colors.Save(ctx),
		m.overdue.Save(ctx),
	)
}
