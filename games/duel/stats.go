package duel

import "github.com/samber/lo"

// Stats summarises the hub for monitoring.
type Stats struct {
	Rooms    int            `json:"rooms"`
	Queued   int            `json:"queued"`
	Sessions int            `json:"sessions"`
	States   map[string]int `json:"states"`
}

func (h *Hub) Stats() (Stats, error) {
	var st Stats

	err := h.do(func() {
		st = Stats{
			Rooms:    h.rooms.Len(),
			Queued:   h.queue.Len(),
			Sessions: len(h.sessions),
			States:   h.rooms.CountByState(),
		}
	})

	return st, err
}

// RoomOf returns a snapshot of the room s currently belongs to.
func (h *Hub) RoomOf(s *Session) (RoomInfo, bool) {
	var (
		info RoomInfo
		ok   bool
	)

	_ = h.do(func() {
		if s.room != nil {
			info, ok = s.room.info(), true
		}
	})

	return info, ok
}

// Room returns a snapshot of a registered room.
func (h *Hub) Room(id string) (RoomInfo, bool) {
	var (
		info RoomInfo
		ok   bool
	)

	_ = h.do(func() {
		if r, found := h.rooms.Get(id); found {
			info, ok = r.info(), true
		}
	})

	return info, ok
}

// Rooms returns snapshots of every registered room, oldest first.
func (h *Hub) Rooms() []RoomInfo {
	var rooms []RoomInfo

	_ = h.do(func() {
		rooms = lo.Map(h.rooms.Rooms(), func(r *Room, _ int) RoomInfo { return r.info() })
	})

	return rooms
}

// Queued returns the IDs of waiting sessions, earliest first.
func (h *Hub) Queued() []string {
	var ids []string

	_ = h.do(func() { ids = h.queue.IDs() })

	return ids
}
