package colors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, store kv.Store) (*ColorCache, *time.Time) {
	t.Helper()
	c, err := Load(context.Background(), store)
	require.NoError(t, err)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return c, &clock
}

func TestColorIDIsStable(t *testing.T) {
	store := kv.NewMemory()
	c, _ := newCache(t, store)

	assert.Equal(t, Shared, c.ColorID("", true))
	misha := c.ColorID("Misha", true)
	assert.Equal(t, "1", misha)
	assert.Equal(t, "2", c.ColorID("Dasha", false))
	assert.Equal(t, misha, c.ColorID("Misha", false))

	require.NoError(t, c.Save(context.Background()))
	again, _ := newCache(t, store)
	assert.Equal(t, misha, again.ColorID("Misha", false))
}

func TestFullPaletteRecyclesIdleChildFirst(t *testing.T) {
	c, _ := newCache(t, kv.NewMemory())

	// Ten colours are available besides Shared.
	for i := 0; i < paletteSize-1; i++ {
		c.ColorID(fmt.Sprintf("child-%d", i), i != 1)
	}
	for _, s := range c.Children {
		assert.NotEqual(t, Shared, s.ColorID)
	}

	// child-0 is the oldest, but child-1 has no active tasks.
	idle := c.Children["child-1"].ColorID
	assert.Equal(t, idle, c.ColorID("newcomer", true))
	assert.NotContains(t, c.Children, "child-1")
	assert.Contains(t, c.Children, "child-0")

	// With nobody idle the oldest child gives up its colour.
	oldest := c.Children["child-0"].ColorID
	assert.Equal(t, oldest, c.ColorID("another", true))
	assert.NotContains(t, c.Children, "child-0")
}

func TestResetActive(t *testing.T) {
	c, _ := newCache(t, kv.NewMemory())
	c.ColorID("Misha", true)
	c.ColorID("Misha", true)
	assert.Equal(t, 2, c.Children["Misha"].ActiveTasks)

	c.ResetActive()
	assert.Zero(t, c.Children["Misha"].ActiveTasks)
}
