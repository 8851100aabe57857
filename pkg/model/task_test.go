package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"todo":        StatusTodo,
		"pending":     StatusTodo,
		"in_progress": StatusInProgress,
		"In-Progress": StatusInProgress,
		"completed":   StatusCompleted,
		"cancelled":   StatusCancelled,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("self")
	require.NoError(t, err)
	assert.Equal(t, TypePersonal, typ)

	typ, err = ParseType("all")
	require.NoError(t, err)
	assert.Equal(t, TypeAll, typ)

	_, err = ParseType("pets")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestFilterByDateAndType_Boundaries(t *testing.T) {
	tasks := []Task{
		{ID: RemoteID(1), Title: "water plants", Type: TypeChild, StartDate: "2024-01-10", EndDate: "2024-01-12"},
	}

	assert.Len(t, FilterByDateAndType(tasks, "2024-01-10", TypeAll), 1)
	assert.Len(t, FilterByDateAndType(tasks, "2024-01-12", TypeAll), 1)
	assert.Empty(t, FilterByDateAndType(tasks, "2024-01-09", TypeAll))
	assert.Empty(t, FilterByDateAndType(tasks, "2024-01-13", TypeAll))
}

func TestFilterByDateAndType_TypeAndTimestamps(t *testing.T) {
	tasks := []Task{
		{ID: RemoteID(1), Type: TypeChild, StartDate: "2024-03-01T00:00:00Z", EndDate: "2024-03-05T10:00:00"},
		{ID: RemoteID(2), Type: TypePersonal, StartDate: "2024-03-01", EndDate: "2024-03-01"},
	}

	got := FilterByDateAndType(tasks, "2024-03-01T18:30:00Z", TypeChild)
	require.Len(t, got, 1)
	assert.Equal(t, RemoteID(1), got[0].ID)

	assert.Len(t, FilterByDateAndType(tasks, "2024-03-01", TypeAll), 2)
	assert.Nil(t, FilterByDateAndType(tasks, "yesterday", TypeAll))
}

func TestID_JSON(t *testing.T) {
	var task struct {
		ID ID `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"id": 17}`), &task))
	assert.Equal(t, RemoteID(17), task.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "17"}`), &task))
	assert.Equal(t, RemoteID(17), task.ID)

	// Older clients stored millisecond timestamps as ids for offline tasks.
	require.NoError(t, json.Unmarshal([]byte(`{"id": "1718000000000"}`), &task))
	assert.True(t, task.ID.IsLocal())
	assert.Equal(t, "local-1718000000000", task.ID.String())

	local := NewLocalID()
	b, err := json.Marshal(local)
	require.NoError(t, err)
	var back ID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, local, back)
}

func TestParseID_RemoteBound(t *testing.T) {
	id, err := ParseID("999999999999")
	require.NoError(t, err)
	assert.Equal(t, RemoteID(MaxRemoteID), id)

	id, err = ParseID(" 1000000000000 ")
	require.NoError(t, err)
	assert.True(t, id.IsLocal())
	assert.Equal(t, "local-1000000000000", id.String())

	id, err = ParseID("local-1000000000000")
	require.NoError(t, err)
	assert.Equal(t, "local-1000000000000", id.Local)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestDraftValidate(t *testing.T) {
	d := Draft{Title: "  feed cat ", StartDate: "2024-05-01T08:00:00Z", Coins: 5}
	require.NoError(t, d.Validate())
	assert.Equal(t, "feed cat", d.Title)
	assert.Equal(t, "2024-05-01", d.StartDate)
	assert.Equal(t, "2024-05-01", d.EndDate)
	assert.Equal(t, TypePersonal, d.Type)

	bad := []Draft{
		{StartDate: "2024-05-01"},
		{Title: "x", StartDate: "2024-05-01", Coins: -1},
		{Title: "x", StartDate: "05/01/2024"},
		{Title: "x", StartDate: "2024-05-02", EndDate: "2024-05-01"},
		{Title: "x", StartDate: "2024-05-01", Type: "pets"},
	}
	for _, d := range bad {
		assert.ErrorIs(t, d.Validate(), ErrInvalidTask, "%+v", d)
	}
}
