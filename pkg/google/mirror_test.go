package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/colors"
	"github.com/harrisonrobin/famtasks/pkg/index"
	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"github.com/harrisonrobin/famtasks/pkg/overdue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeCalendar serves the handful of Calendar API calls the mirror makes.
type fakeCalendar struct {
	mu       sync.Mutex
	events   map[string]*calendar.Event
	next     int
	inserts  int
	created  []string
	existing []*calendar.CalendarListEntry
}

func (f *fakeCalendar) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	notFound := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error": {"code": 404, "message": "Not Found"}}`)
	}

	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &calendar.CalendarList{Items: f.existing})
	})
	mux.HandleFunc("POST /calendars", func(w http.ResponseWriter, r *http.Request) {
		var c calendar.Calendar
		json.NewDecoder(r.Body).Decode(&c)
		f.mu.Lock()
		f.created = append(f.created, c.Summary)
		f.mu.Unlock()
		c.Id = "cal-new"
		writeJSON(w, &c)
	})
	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		filter := r.URL.Query().Get("privateExtendedProperty")
		var items []*calendar.Event
		for _, ev := range f.events {
			if filter != "" {
				k, v, _ := strings.Cut(filter, "=")
				if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[k] != v {
					continue
				}
			}
			items = append(items, ev)
		}
		writeJSON(w, &calendar.Events{Items: items})
	})
	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.mu.Lock()
		f.next++
		f.inserts++
		ev.Id = fmt.Sprintf("ev-%d", f.next)
		f.events[ev.Id] = &ev
		f.mu.Unlock()
		writeJSON(w, &ev)
	})
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ev, ok := f.events[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, ev)
	})
	mux.HandleFunc("PATCH /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		var patch calendar.Event
		json.NewDecoder(r.Body).Decode(&patch)
		f.mu.Lock()
		defer f.mu.Unlock()
		ev, ok := f.events[r.PathValue("id")]
		if !ok {
			notFound(w)
			return
		}
		if patch.Summary != "" {
			ev.Summary = patch.Summary
		}
		if patch.Description != "" {
			ev.Description = patch.Description
		}
		if patch.ColorId != "" {
			ev.ColorId = patch.ColorId
		}
		if patch.Start != nil {
			ev.Start, ev.End = patch.Start, patch.End
		}
		if patch.ExtendedProperties != nil {
			ev.ExtendedProperties = patch.ExtendedProperties
		}
		writeJSON(w, ev)
	})
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_, ok := f.events[r.PathValue("id")]
		delete(f.events, r.PathValue("id"))
		f.mu.Unlock()
		if !ok {
			notFound(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeCalendar) summaryOf(taskID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private[taskIDProperty] == taskID {
			return ev.Summary
		}
	}
	return ""
}

func newMirror(t *testing.T, fake *fakeCalendar, store kv.Store) (*Mirror, *CalendarClient) {
	t.Helper()
	ctx := context.Background()
	hs := httptest.NewServer(fake.handler())
	t.Cleanup(hs.Close)

	quiet := log.New(io.Discard, "", 0)
	idx, err := index.Load(ctx, store)
	require.NoError(t, err)
	cc, err := colors.Load(ctx, store)
	require.NoError(t, err)
	table, err := overdue.Load(ctx, store)
	require.NoError(t, err)

	cal, err := NewClient(ctx, hs.Client(), "Family Tasks", idx, quiet,
		option.WithEndpoint(hs.URL+"/"))
	require.NoError(t, err)
	return NewMirror(cal, idx, cc, table, quiet), cal
}

func TestNewClientFindsOrCreatesCalendar(t *testing.T) {
	fake := &fakeCalendar{events: map[string]*calendar.Event{}}
	_, cal := newMirror(t, fake, kv.NewMemory())
	assert.Equal(t, "cal-new", cal.CalendarID())
	assert.Equal(t, []string{"Family Tasks"}, fake.created)

	fake = &fakeCalendar{
		events:   map[string]*calendar.Event{},
		existing: []*calendar.CalendarListEntry{{Id: "cal-family", Summary: "Family Tasks"}},
	}
	_, cal = newMirror(t, fake, kv.NewMemory())
	assert.Equal(t, "cal-family", cal.CalendarID())
	assert.Empty(t, fake.created)
}

func TestMirrorSync(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCalendar{events: map[string]*calendar.Event{}}
	store := kv.NewMemory()
	m, _ := newMirror(t, fake, store)
	m.now = func() time.Time { return time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC) }

	open := model.Task{ID: model.RemoteID(1), Title: "Tidy room", Status: model.StatusTodo, Type: model.TypeChild,
		StartDate: "2024-01-10", EndDate: "2024-01-12", ChildName: "Misha"}
	done := model.Task{ID: model.RemoteID(2), Title: "Dishes", Status: model.StatusCompleted, Type: model.TypeFamily,
		StartDate: "2024-01-10", EndDate: "2024-01-10"}
	local := model.Task{ID: model.ID{Local: "local-abc"}, Title: "Water plants", Status: model.StatusTodo,
		Type: model.TypePersonal, StartDate: "2024-01-11", EndDate: "2024-01-11"}

	report, err := m.Sync(ctx, []model.Task{open, done, local}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Synced)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 3, fake.inserts)
	assert.Equal(t, "✓ Dishes", fake.summaryOf("2"))
	assert.Contains(t, m.overdue.Entries, "1")
	assert.NotContains(t, m.overdue.Entries, "2")

	// Second run: task 1 is gone and the local task was uploaded as 9.
	uploaded := local
	uploaded.ID = model.RemoteID(9)
	done.Title = "Dishes and pans"
	report, err = m.Sync(ctx, []model.Task{done, uploaded}, map[string]model.ID{"local-abc": model.RemoteID(9)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 3, fake.inserts, "existing events are patched, not recreated")
	assert.Equal(t, "✓ Dishes and pans", fake.summaryOf("2"))
	assert.Equal(t, "Water plants", fake.summaryOf("9"))
	assert.Empty(t, fake.summaryOf("1"))

	// Persisted state survives a reload.
	idx, err := index.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "9"}, idx.TaskIDs())

	// Once the last day has passed the open task is flagged.
	m.now = func() time.Time { return time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC) }
	flagged, err := m.FlagOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	assert.Equal(t, "! Water plants", fake.summaryOf("9"))
}
