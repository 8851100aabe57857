package tasksync_test

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/devserver"
	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"github.com/harrisonrobin/famtasks/pkg/resolver"
	"github.com/harrisonrobin/famtasks/pkg/tasksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgainstDevServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	quiet := log.New(io.Discard, "", 0)
	ctx := context.Background()

	srv := devserver.New(devserver.Options{Logger: quiet})
	srv.AddUser("olga", "secret", "Olga", "parent")
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	store := kv.NewMemory()
	res := resolver.New(store, resolver.Options{
		FallbackURLs: []string{"http://127.0.0.1:1", hs.URL},
		CheckTimeout: time.Second,
		Logger:       quiet,
	})
	sess := auth.NewSession(store)
	client := api.NewClient(res.Current, sess.TokenSource(), api.WithTimeout(2*time.Second), api.WithLogger(quiet))
	engine := tasksync.New(client, sess, store, tasksync.WithLogger(quiet))

	// Offline first: the task is kept locally.
	local, err := engine.CreateTask(ctx, model.Draft{Title: "Read a chapter", StartDate: "2024-01-10", EndDate: "2024-01-12", Coins: 3})
	require.NoError(t, err)
	assert.True(t, local.ID.IsLocal())

	tok, user, err := client.Login(ctx, "olga", "secret", "")
	require.NoError(t, err)
	require.NoError(t, sess.Set(ctx, tok, user))

	tasks, err := engine.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	id := tasks[0].ID
	assert.False(t, id.IsLocal())
	assert.Equal(t, tasksync.Ready, engine.Status().State)

	saved, ok, err := res.Saved(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hs.URL, saved.APIURL)

	require.NoError(t, engine.UpdateStatus(ctx, local.ID, model.StatusInProgress))
	server, err := client.GetTask(ctx, id.Remote)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, server.Status)

	second, err := engine.CreateTask(ctx, model.Draft{Title: "Laundry", Type: model.TypeFamily, StartDate: "2024-01-11"})
	require.NoError(t, err)
	assert.Len(t, engine.FilterByDateAndType("2024-01-11", model.TypeAll), 2)
	assert.Len(t, engine.FilterByDateAndType("2024-01-12", model.TypeFamily), 0)

	ok, err = engine.DeleteTask(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	tasks, err = engine.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)

	// The backend going away leaves the cached list in place.
	hs.Close()
	tasks, err = engine.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, tasksync.Degraded, engine.Status().State)
	assert.ErrorIs(t, engine.Status().Err, api.ErrNetwork)
}
