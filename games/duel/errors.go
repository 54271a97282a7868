package duel

import "errors"

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrHubStopped      = errors.New("hub stopped")
	ErrUnknownMessage  = errors.New("unknown message type")
)
