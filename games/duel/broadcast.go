package duel

import (
	"fmt"
	"log/slog"
)

// Broadcaster delivers messages to sessions. Delivery is best effort: a
// recipient whose transport is gone or backed up is skipped.
type Broadcaster struct {
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{logger: logger}
}

// Send encodes msg with the recipient's codec and hands it to its transport.
func (b *Broadcaster) Send(s *Session, msg any) error {
	if s == nil || !s.alive() {
		return ErrTransportClosed
	}

	data, err := s.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode for %s: %w", s.ID, err)
	}

	return s.transport.Send(data)
}

// Deliver is Send with the error logged instead of returned.
func (b *Broadcaster) Deliver(s *Session, msg any) {
	if err := b.Send(s, msg); err != nil {
		b.logger.Debug("dropped message", "player", sessionID(s), "error", err)
	}
}

// Broadcast delivers msg to every member except the one given.
func (b *Broadcaster) Broadcast(members []*Session, msg any, except *Session) {
	for _, s := range members {
		if s == except {
			continue
		}

		b.Deliver(s, msg)
	}
}

func sessionID(s *Session) string {
	if s == nil {
		return ""
	}

	return s.ID
}
