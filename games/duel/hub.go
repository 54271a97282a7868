/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package duel pairs connected players into two-player matches and relays
// their self-reported state.
//
// A Hub owns every piece of shared state (the matchmaking queue, the room
// registry and the connected sessions) and mutates it from a single goroutine
// started by Run. Callers submit work through the exported methods, which
// block until the loop has applied it. Countdown timers and the reaper feed
// back into the same loop, so no two mutations ever interleave.
//
// The server never simulates the game. Both clients lay out obstacles from
// the seed in gameStart using Layout.GapPosition, report their own position
// and score, and report their own death.
package duel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Options tune match pacing and housekeeping.
type Options struct {
	// Countdown is the first count broadcast before a match starts.
	Countdown int
	// CountdownInterval is the delay between countdown broadcasts.
	CountdownInterval time.Duration
	// ReapInterval is how often rooms without live members are removed.
	// Zero disables the periodic pass.
	ReapInterval time.Duration
	// SearchingMessage is shown to queued players.
	SearchingMessage string
	// Scheduler runs countdown ticks. Defaults to WallClock.
	Scheduler Scheduler
}

func DefaultOptions() Options {
	return Options{
		Countdown:         3,
		CountdownInterval: time.Second,
		ReapInterval:      30 * time.Second,
		SearchingMessage:  "Searching for an opponent...",
		Scheduler:         WallClock,
	}
}

// Hub is the session orchestrator.
type Hub struct {
	opts   Options
	logger *slog.Logger
	bc     *Broadcaster

	queue    *Queue
	rooms    *Registry
	sessions map[string]*Session
	deps     *roomDeps

	events  chan func()
	stopped chan struct{}
}

func NewHub(opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Scheduler == nil {
		opts.Scheduler = WallClock
	}

	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}

	h := &Hub{
		opts:     opts,
		logger:   logger,
		bc:       NewBroadcaster(logger),
		queue:    NewQueue(),
		rooms:    NewRegistry(),
		sessions: make(map[string]*Session),
		events:   make(chan func()),
		stopped:  make(chan struct{}),
	}

	h.deps = &roomDeps{
		bc:        h.bc,
		sched:     opts.Scheduler,
		post:      h.do,
		seed:      newSeed,
		logger:    logger,
		countdown: opts.Countdown,
		interval:  opts.CountdownInterval,
	}

	return h
}

// Run processes hub events until ctx is cancelled. It must be called exactly
// once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	var reap <-chan time.Time
	if h.opts.ReapInterval > 0 {
		ticker := time.NewTicker(h.opts.ReapInterval)
		defer ticker.Stop()

		reap = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()

			return nil
		case fn := <-h.events:
			fn()
		case <-reap:
			h.reap()
		}
	}
}

// do runs fn on the hub loop and waits for it to finish.
func (h *Hub) do(fn func()) error {
	done := make(chan struct{})

	select {
	case h.events <- func() {
		defer close(done)
		fn()
	}:
	case <-h.stopped:
		return ErrHubStopped
	}

	<-done

	return nil
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms.Rooms() {
		r.cancel()
	}

	h.logger.Info("hub stopped", "rooms", h.rooms.Len(), "sessions", len(h.sessions))
}

// Connect registers a new session on t, sends its identity, and pairs or
// queues it.
func (h *Hub) Connect(t Transport, codec Codec) (*Session, error) {
	s := newSession(t, codec)

	if err := h.do(func() { h.connect(s) }); err != nil {
		return nil, err
	}

	return s, nil
}

// Disconnect removes s from the queue or its room. It is safe to call more
// than once.
func (h *Hub) Disconnect(s *Session) error {
	return h.do(func() { h.disconnect(s) })
}

// Deliver routes one inbound frame from s.
func (h *Hub) Deliver(s *Session, data []byte) error {
	var err error

	if hubErr := h.do(func() { err = h.route(s, data) }); hubErr != nil {
		return hubErr
	}

	return err
}

// Reap removes rooms whose members have no live transport and returns how
// many were removed.
func (h *Hub) Reap() (int, error) {
	var n int

	err := h.do(func() { n = h.reap() })

	return n, err
}

func (h *Hub) connect(s *Session) {
	h.sessions[s.ID] = s

	h.bc.Deliver(s, ConnectedMessage{
		Type:       TypeConnected,
		PlayerID:   s.ID,
		PlayerName: s.Name,
	})

	h.logger.Info("player connected", "player", s.ID, "name", s.Name, "codec", s.codec.Name())

	h.enqueueOrPair(s)
}

func (h *Hub) disconnect(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}

	delete(h.sessions, s.ID)
	h.queue.Remove(s)

	if r := s.room; r != nil {
		h.removeMember(r, s)
	}

	h.logger.Info("player disconnected", "player", s.ID, "name", s.Name)
}

// enqueueOrPair matches s with the longest waiting session, or queues it.
// Waiting sessions whose transport already died are skipped.
func (h *Hub) enqueueOrPair(s *Session) *Room {
	for {
		head, ok := h.queue.PairOrPush(s)
		if !ok {
			h.bc.Deliver(s, SearchingMessage{
				Type:    TypeSearching,
				Message: h.opts.SearchingMessage,
			})

			return nil
		}

		if !head.alive() {
			h.logger.Debug("skipped stale queue entry", "player", head.ID)

			continue
		}

		r := newRoom(head, s, h.deps)
		h.rooms.Add(r)

		h.logger.Info("room created", "room", r.ID, "first", head.Name, "second", s.Name)

		r.startCountdown()

		return r
	}
}

// requeue takes s out of wherever it is and matches it afresh.
func (h *Hub) requeue(s *Session) {
	if r := s.room; r != nil {
		h.removeMember(r, s)
	}

	h.queue.Remove(s)
	h.enqueueOrPair(s)
}

// removeMember is the single path by which a session leaves a room.
func (h *Hub) removeMember(r *Room, s *Session) {
	if r.remove(s) > 0 {
		return
	}

	if h.rooms.Delete(r.ID) {
		h.logger.Info("room removed", "room", r.ID)
	}
}

// route decodes and dispatches one inbound frame. Malformed and unknown
// messages are logged and dropped. Messages that do not apply to the room's
// current state are ignored.
func (h *Hub) route(s *Session, data []byte) error {
	if _, ok := h.sessions[s.ID]; !ok {
		return nil
	}

	var in Inbound
	if err := s.codec.Unmarshal(data, &in); err != nil {
		h.logger.Warn("malformed message", "player", s.ID, "error", err)

		return fmt.Errorf("decode message: %w", err)
	}

	switch in.Type {
	case TypePlayerMove:
		h.dispatch(s, in.Type, func(r *Room) bool { return r.move(s, in) })
	case TypePlayerDeath:
		h.dispatch(s, in.Type, func(r *Room) bool { return r.death(s) })
	case TypeRematch:
		h.dispatch(s, in.Type, func(r *Room) bool { return r.vote(s) })
	case TypeSearchNewMatch:
		h.requeue(s)
	default:
		h.logger.Warn("unknown message", "player", s.ID, "type", in.Type)

		return fmt.Errorf("%w: %q", ErrUnknownMessage, in.Type)
	}

	return nil
}

func (h *Hub) dispatch(s *Session, kind string, apply func(*Room) bool) {
	if r := s.room; r != nil && apply(r) {
		return
	}

	h.logger.Debug("ignored message", "player", s.ID, "type", kind)
}

func (h *Hub) reap() int {
	var n int

	for _, r := range h.rooms.Rooms() {
		if r.liveMembers() > 0 {
			continue
		}

		r.cancel()

		for _, m := range r.members {
			if m.room == r {
				m.room = nil
			}
		}

		h.rooms.Delete(r.ID)
		n++

		h.logger.Info("reaped room", "room", r.ID, "state", r.state.String())
	}

	return n
}

// newSeed picks a match seed in [0, LCGModulus), different from prev.
func newSeed(prev int64) int64 {
	for {
		if seed := rand.Int63n(LCGModulus); seed != prev {
			return seed
		}
	}
}
