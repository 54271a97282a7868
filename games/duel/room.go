package duel

import (
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RoomState is a step in a match's life cycle.
//
//	Countdown → Playing → Finished → Countdown (both voted rematch)
//	any state → Abandoned (a member left)
type RoomState int

const (
	StateCountdown RoomState = iota
	StatePlaying
	StateFinished
	StateAbandoned
)

func (s RoomState) String() string {
	switch s {
	case StateCountdown:
		return "countdown"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// roomDeps is what a room needs from the hub that owns it.
type roomDeps struct {
	bc        *Broadcaster
	sched     Scheduler
	post      func(func()) error
	seed      func(prev int64) int64
	logger    *slog.Logger
	countdown int
	interval  time.Duration
}

// Room coordinates one match between two sessions. All methods must run on
// the hub loop.
type Room struct {
	ID        string
	CreatedAt time.Time

	members []*Session
	state   RoomState
	scores  map[string]int
	seed    int64
	votes   map[string]struct{}

	count int
	gen   uint64
	timer Timer

	// order is assigned by the Registry.
	order uint64

	deps *roomDeps
}

func newRoom(a, b *Session, deps *roomDeps) *Room {
	r := &Room{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		members:   []*Session{a, b},
		scores:    map[string]int{a.ID: 0, b.ID: 0},
		seed:      deps.seed(-1),
		votes:     make(map[string]struct{}),
		deps:      deps,
	}

	a.room = r
	b.room = r

	return r
}

func (r *Room) State() RoomState {
	return r.state
}

func (r *Room) Seed() int64 {
	return r.seed
}

func (r *Room) opponent(s *Session) *Session {
	for _, m := range r.members {
		if m != s {
			return m
		}
	}

	return nil
}

func (r *Room) has(s *Session) bool {
	return lo.Contains(r.members, s)
}

func (r *Room) liveMembers() int {
	return lo.CountBy(r.members, func(s *Session) bool { return s.alive() })
}

func (r *Room) broadcast(msg any) {
	r.deps.bc.Broadcast(r.members, msg, nil)
}

// startCountdown (re)enters Countdown and announces the pairing.
func (r *Room) startCountdown() {
	r.cancel()

	r.state = StateCountdown
	r.count = max(r.deps.countdown, 0)

	for _, s := range r.members {
		opponent := "Unknown"
		if o := r.opponent(s); o != nil {
			opponent = o.Name
		}

		r.deps.bc.Deliver(s, MatchFoundMessage{
			Type:     TypeMatchFound,
			Opponent: opponent,
		})
	}

	r.broadcast(CountdownMessage{
		Type:  TypeCountdown,
		Count: r.count,
	})

	r.advance()
}

func (r *Room) advance() {
	if r.count > 0 {
		gen := r.gen
		r.timer = r.deps.sched.AfterFunc(r.deps.interval, func() {
			_ = r.deps.post(func() { r.tick(gen) })
		})

		return
	}

	r.state = StatePlaying

	r.broadcast(GameStartMessage{
		Type: TypeGameStart,
		Seed: r.seed,
	})

	r.deps.logger.Info("match started", "room", r.ID, "seed", r.seed)
}

// tick handles one countdown step. Ticks scheduled before the last cancel
// carry a stale generation and are dropped.
func (r *Room) tick(gen uint64) {
	if gen != r.gen || r.state != StateCountdown {
		return
	}

	r.timer = nil
	r.count--

	r.broadcast(CountdownMessage{
		Type:  TypeCountdown,
		Count: r.count,
	})

	r.advance()
}

// cancel invalidates any pending countdown tick.
func (r *Room) cancel() {
	r.gen++

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// move records the sender's score and relays its state to the opponent.
func (r *Room) move(s *Session, in Inbound) bool {
	if r.state != StatePlaying || !r.has(s) {
		return false
	}

	r.scores[s.ID] = in.Score

	if o := r.opponent(s); o != nil {
		r.deps.bc.Deliver(o, OpponentMoveMessage{
			Type:     TypeOpponentMove,
			BirdY:    in.BirdY,
			Velocity: in.Velocity,
			Score:    in.Score,
		})
	}

	return true
}

// death ends the match in favour of the other member. Only the first report
// while Playing counts.
func (r *Room) death(s *Session) bool {
	if r.state != StatePlaying || !r.has(s) {
		return false
	}

	winner := r.opponent(s)
	if winner == nil {
		return false
	}

	r.state = StateFinished
	clear(r.votes)

	r.broadcast(GameOverMessage{
		Type:        TypeGameOver,
		Winner:      winner.Name,
		Loser:       s.Name,
		FinalScores: maps.Clone(r.scores),
	})

	r.deps.logger.Info("match finished", "room", r.ID, "winner", winner.Name, "loser", s.Name)

	return true
}

// vote casts s's rematch vote. The second distinct vote restarts the match.
func (r *Room) vote(s *Session) bool {
	if r.state != StateFinished || !r.has(s) {
		return false
	}

	if _, ok := r.votes[s.ID]; ok {
		return false
	}

	r.votes[s.ID] = struct{}{}

	if len(r.votes) == len(r.members) && len(r.members) == 2 {
		r.reset()

		return true
	}

	if o := r.opponent(s); o != nil {
		r.deps.bc.Deliver(o, RematchVoteMessage{
			Type:       TypeRematchVote,
			PlayerName: s.Name,
		})
	}

	return true
}

func (r *Room) reset() {
	for id := range r.scores {
		r.scores[id] = 0
	}

	r.seed = r.deps.seed(r.seed)
	clear(r.votes)

	r.deps.logger.Info("rematch accepted", "room", r.ID, "seed", r.seed)

	r.startCountdown()
}

// remove takes s out of the room and returns how many members remain. A
// single remaining member is told its opponent left and the room stops
// processing gameplay.
func (r *Room) remove(s *Session) int {
	i := lo.IndexOf(r.members, s)
	if i < 0 {
		return len(r.members)
	}

	r.members = append(r.members[:i:i], r.members[i+1:]...)
	delete(r.votes, s.ID)

	if s.room == r {
		s.room = nil
	}

	r.cancel()

	if len(r.members) == 1 {
		r.state = StateAbandoned

		r.deps.bc.Deliver(r.members[0], SimpleMessage{Type: TypeOpponentDisconnected})
	}

	return len(r.members)
}

// RoomInfo is a point-in-time copy of a room, safe to use off the hub loop.
type RoomInfo struct {
	ID      string         `json:"id"`
	State   string         `json:"state"`
	Members []string       `json:"members"`
	Scores  map[string]int `json:"scores"`
	Seed    int64          `json:"seed"`
	Votes   int            `json:"votes"`
	Count   int            `json:"count"`
}

func (r *Room) info() RoomInfo {
	return RoomInfo{
		ID:      r.ID,
		State:   r.state.String(),
		Members: lo.Map(r.members, func(s *Session, _ int) string { return s.ID }),
		Scores:  maps.Clone(r.scores),
		Seed:    r.seed,
		Votes:   len(r.votes),
		Count:   r.count,
	}
}
