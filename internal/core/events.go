package core

import "github.com/dkeye/Beacon/internal/domain"

type RoomEventKind int

const (
	EventUserJoined RoomEventKind = iota
	EventUserLeft
	EventUserStartProduce
	EventUserStopProduce
	EventRoomDelete
)

// RoomEvent is a room-scoped notification fanned out to every subscriber.
// UserID and Produce are set only for the kinds that carry them.
type RoomEvent struct {
	Kind    RoomEventKind
	UserID  domain.UserID
	Produce domain.ProduceType
}

// Subscription is one consumer's view of the room broadcast stream.
// C is closed when the subscriber falls behind (buffer overflow) or the
// room tears the stream down; consumers treat an unexpected close as a
// channel failure.
type Subscription struct {
	C    <-chan RoomEvent
	room *Room
	id   int
}

// Close unsubscribes. Safe to call after the channel was already closed
// by the room.
func (s *Subscription) Close() {
	s.room.unsubscribe(s.id)
}
