package duel

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Transport is the connection layer's handle for one client. The core never
// owns it: it only sends on it and checks whether it is still usable.
type Transport interface {
	Send(data []byte) error
	Alive() bool
}

// Session is one connected participant.
type Session struct {
	ID          string
	Name        string
	ConnectedAt time.Time

	transport Transport
	codec     Codec

	// room is only read and written from the hub loop.
	room *Room
}

func newSession(t Transport, codec Codec) *Session {
	if codec == nil {
		codec = JSON
	}

	return &Session{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("Player%d", rand.Intn(9999)),
		ConnectedAt: time.Now(),
		transport:   t,
		codec:       codec,
	}
}

func (s *Session) alive() bool {
	return s.transport != nil && s.transport.Alive()
}
