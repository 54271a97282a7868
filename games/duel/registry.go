package duel

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// Registry tracks live rooms by ID.
type Registry struct {
	rooms map[string]*Room
	added uint64
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (g *Registry) Add(r *Room) {
	g.added++
	r.order = g.added
	g.rooms[r.ID] = r
}

func (g *Registry) Get(id string) (*Room, bool) {
	r, ok := g.rooms[id]

	return r, ok
}

func (g *Registry) Delete(id string) bool {
	if _, ok := g.rooms[id]; !ok {
		return false
	}

	delete(g.rooms, id)

	return true
}

func (g *Registry) Len() int {
	return len(g.rooms)
}

// Rooms returns the live rooms in the order they were added.
func (g *Registry) Rooms() []*Room {
	rooms := lo.Values(g.rooms)

	slices.SortFunc(rooms, func(a, b *Room) int {
		return cmp.Compare(a.order, b.order)
	})

	return rooms
}

// CountByState returns the number of rooms in each state.
func (g *Registry) CountByState() map[string]int {
	return lo.CountValuesBy(lo.Values(g.rooms), func(r *Room) string {
		return r.state.String()
	})
}
