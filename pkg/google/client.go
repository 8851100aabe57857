// Package google mirrors family tasks into a Google Calendar as all-day
// events.
package google

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/harrisonrobin/famtasks/pkg/index"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Scopes needed to find or create the calendar and manage its events.
var Scopes = []string{
	calendar.CalendarScope,
}

// NewClient opens the calendar named calendarName, creating it when the
// account has none by that name. hc must already carry Google credentials.
func NewClient(ctx context.Context, hc *http.Client, calendarName string, idx *index.EventIndex, logger *log.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(hc)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	var calendarID string
	err = srv.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if calendarID == "" && item.Summary == calendarName {
				calendarID = item.Id
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	if calendarID == "" {
		created, err := srv.Calendars.Insert(&calendar.Calendar{Summary: calendarName}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("calendar '%s' not found and could not be created: %w", calendarName, err)
		}
		logger.Printf("calendar: created calendar %q", calendarName)
		calendarID = created.Id
	}

	return NewCalendarClient(srv, calendarID, idx, logger), nil
}
