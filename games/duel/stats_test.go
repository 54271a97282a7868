package duel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_Snapshots(t *testing.T) {
	h, sched := newTestHub(t)

	first := startMatch(t, h, sched)
	a, _ := connect(t, h)
	b, _ := connect(t, h)
	c, _ := connect(t, h)

	rooms := h.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, []string{first.p1.ID, first.p2.ID}, rooms[0].Members)
	assert.Equal(t, []string{a.ID, b.ID}, rooms[1].Members)
	assert.Equal(t, StatePlaying.String(), rooms[0].State)
	assert.Equal(t, StateCountdown.String(), rooms[1].State)
	assert.Equal(t, 3, rooms[1].Count)

	got, ok := h.Room(rooms[1].ID)
	require.True(t, ok)
	assert.Equal(t, rooms[1], got)

	_, ok = h.Room("missing")
	assert.False(t, ok)

	stats, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Rooms:    2,
		Queued:   1,
		Sessions: 5,
		States:   map[string]int{"playing": 1, "countdown": 1},
	}, stats)
	assert.Equal(t, []string{c.ID}, h.Queued())
}
