package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/harrisonrobin/famtasks/pkg/index"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// CalendarClient reads and writes the events of one calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	logger     *log.Logger
}

func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.EventIndex, logger *log.Logger) *CalendarClient {
	if logger == nil {
		logger = log.Default()
	}
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, logger: logger}
}

func (c *CalendarClient) CalendarID() string {
	return c.calendarID
}

// SyncEvent creates the event for taskID or patches the existing one so it
// matches event.
func (c *CalendarClient) SyncEvent(ctx context.Context, taskID string, event *calendar.Event) (*calendar.Event, error) {
	var existing *calendar.Event
	if c.index != nil {
		if eventID := c.index.Get(taskID); eventID != "" {
			ev, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			switch {
			case err == nil && ev.Status != "cancelled":
				existing = ev
			case err != nil && !isNotFound(err):
				c.logger.Printf("calendar: get event %s: %v", eventID, err)
			}
		}
	}

	if existing == nil {
		var err error
		existing, err = c.GetEventByTaskID(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		if patch := EventNeedsUpdate(existing, event); patch != nil {
			updated, err := c.PatchEvent(ctx, existing.Id, patch)
			if err != nil {
				return nil, err
			}
			existing = updated
		}
		if c.index != nil {
			c.index.Set(taskID, existing.Id)
		}
		return existing, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if c.index != nil {
		c.index.Set(taskID, created.Id)
	}
	return created, nil
}

func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	ev, err := c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("patch event %s: %w", eventID, err)
	}
	return ev, nil
}

// DeleteEvent deletes an event. An event that is already gone is not an
// error.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

// ListEvents returns every event of the calendar that mirrors a task.
func (c *CalendarClient) ListEvents(ctx context.Context) ([]*calendar.Event, error) {
	var out []*calendar.Event
	err := c.srv.Events.List(c.calendarID).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				if _, ok := TaskIDFromEvent(ev); ok {
					out = append(out, ev)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

// GetEventByTaskID searches for the event carrying the task id property.
func (c *CalendarClient) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", taskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	for _, ev := range events.Items {
		if ev.Status != "cancelled" {
			return ev, nil
		}
	}
	return nil, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}
