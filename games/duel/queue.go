package duel

import "github.com/samber/lo"

// Queue is the FIFO list of sessions waiting for an opponent.
type Queue struct {
	waiting []*Session
}

func NewQueue() *Queue {
	return &Queue{}
}

// PairOrPush removes and returns the longest waiting session if there is one.
// Otherwise s is appended to the tail and ok is false. A session that is
// already waiting is never added twice.
func (q *Queue) PairOrPush(s *Session) (head *Session, ok bool) {
	if q.Contains(s) {
		return nil, false
	}

	if len(q.waiting) == 0 {
		q.waiting = append(q.waiting, s)

		return nil, false
	}

	head = q.waiting[0]
	q.waiting[0] = nil
	q.waiting = q.waiting[1:]

	return head, true
}

// Remove drops s from the queue, reporting whether it was queued.
func (q *Queue) Remove(s *Session) bool {
	i := lo.IndexOf(q.waiting, s)
	if i < 0 {
		return false
	}

	q.waiting = append(q.waiting[:i:i], q.waiting[i+1:]...)

	return true
}

func (q *Queue) Contains(s *Session) bool {
	return lo.Contains(q.waiting, s)
}

func (q *Queue) Len() int {
	return len(q.waiting)
}

// IDs returns the waiting session IDs, earliest first.
func (q *Queue) IDs() []string {
	return lo.Map(q.waiting, func(s *Session, _ int) string { return s.ID })
}
