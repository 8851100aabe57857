package overdue

import (
	"context"
	"testing"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepReturnsPastDueOnly(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	tbl, err := Load(ctx, store)
	require.NoError(t, err)

	jan := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	tbl.Update("2", "ev-2", "Laundry", jan(11))
	tbl.Update("1", "ev-1", "Dishes", jan(10))
	tbl.Update("3", "ev-3", "Garden", jan(20))
	tbl.Update("4", "ev-4", "Done already", time.Time{})
	require.NoError(t, tbl.Save(ctx))

	reloaded, err := Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 3)

	swept := reloaded.Sweep(jan(12))
	require.Len(t, swept, 2)
	assert.Equal(t, "1", swept[0].TaskID)
	assert.Equal(t, "ev-2", swept[1].EventID)
	assert.Len(t, reloaded.Entries, 1)

	require.NoError(t, reloaded.Save(ctx))
	again, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Contains(t, again.Entries, "3")
}

func TestUpdateWithZeroDueRemoves(t *testing.T) {
	tbl, err := Load(context.Background(), kv.NewMemory())
	require.NoError(t, err)
	tbl.Update("1", "ev-1", "Dishes", time.Now())
	tbl.Update("1", "ev-1", "Dishes", time.Time{})
	assert.Empty(t, tbl.Entries)
}
