package duel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mu     sync.Mutex
	frames [][]byte
	dead   bool
}

func (m *mockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dead {
		return ErrTransportClosed
	}

	m.frames = append(m.frames, data)

	return nil
}

func (m *mockTransport) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return !m.dead
}

func (m *mockTransport) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dead = true
}

func (m *mockTransport) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames = nil
}

func (m *mockTransport) messages(t *testing.T) []map[string]any {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, 0, len(m.frames))
	for _, f := range m.frames {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(f, &msg))
		out = append(out, msg)
	}

	return out
}

func (m *mockTransport) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, msg := range m.messages(t) {
		if msg["type"] == typ {
			out = append(out, msg)
		}
	}

	return out
}

func (m *mockTransport) types(t *testing.T) []string {
	t.Helper()

	var out []string
	for _, msg := range m.messages(t) {
		out = append(out, msg["type"].(string))
	}

	return out
}

// manualScheduler fires timers only when the test asks it to.
type manualScheduler struct {
	mu         sync.Mutex
	timers     []*manualTimer
	ignoreStop bool
}

type manualTimer struct {
	s       *manualScheduler
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.ignoreStop || t.stopped || t.fired {
		return false
	}

	t.stopped = true

	return true
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{s: s, f: f}
	s.timers = append(s.timers, t)

	return t
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}

	return n
}

// fire runs the oldest pending timer and reports whether there was one.
func (s *manualScheduler) fire() bool {
	s.mu.Lock()

	var next *manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t

			break
		}
	}

	if next == nil {
		s.mu.Unlock()

		return false
	}

	next.fired = true
	s.mu.Unlock()

	next.f()

	return true
}

func (s *manualScheduler) fireN(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		require.True(t, s.fire(), "expected pending timer %d of %d", i+1, n)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) (*Hub, *manualScheduler) {
	t.Helper()

	sched := &manualScheduler{}

	opts := DefaultOptions()
	opts.Scheduler = sched
	opts.ReapInterval = 0

	h := NewHub(opts, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return h, sched
}

func connect(t *testing.T, h *Hub) (*Session, *mockTransport) {
	t.Helper()

	tr := &mockTransport{}
	s, err := h.Connect(tr, JSON)
	require.NoError(t, err)

	return s, tr
}

func send(t *testing.T, h *Hub, s *Session, msg any) error {
	t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	return h.Deliver(s, data)
}

type pair struct {
	p1, p2 *Session
	t1, t2 *mockTransport
}

// startMatch connects two players and runs their countdown to Playing.
func startMatch(t *testing.T, h *Hub, sched *manualScheduler) pair {
	t.Helper()

	p1, t1 := connect(t, h)
	p2, t2 := connect(t, h)

	sched.fireN(t, h.opts.Countdown)

	info, ok := h.RoomOf(p1)
	require.True(t, ok)
	require.Equal(t, StatePlaying.String(), info.State)

	return pair{p1: p1, p2: p2, t1: t1, t2: t2}
}
