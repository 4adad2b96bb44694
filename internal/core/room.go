package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/domain"
)

// subBuffer bounds how far a subscriber may lag behind the broadcast
// stream before its channel is closed out from under it.
const subBuffer = 16

// Room is a threadsafe in-memory room: a router handle, a roster of
// registered users and a multi-consumer broadcast stream.
type Room struct {
	id   domain.RoomID
	name domain.RoomName

	mu      sync.RWMutex
	router  Router
	deleted bool
	subs    map[int]chan RoomEvent
	nextSub int

	roster *Roster
}

func newRoom(id domain.RoomID, name domain.RoomName, router Router) *Room {
	r := &Room{
		id:     id,
		name:   name,
		router: router,
		subs:   make(map[int]chan RoomEvent),
	}
	r.roster = newRoster(r)
	return r
}

func (r *Room) ID() domain.RoomID     { return r.id }
func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) Users() *Roster { return r.roster }

// Router returns the room's media router, or nil once the room has been
// deleted.
func (r *Room) Router() Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.deleted {
		return nil
	}
	return r.router
}

// Subscribe opens a consumer on the room broadcast stream.
// Returns nil if the room has already been torn down.
func (r *Room) Subscribe() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil
	}
	ch := make(chan RoomEvent, subBuffer)
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	return &Subscription{C: ch, room: r, id: id}
}

// SubscriberCount reports how many live broadcast consumers the room
// has. Useful for operational introspection and synchronization in
// tests.
func (r *Room) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Room) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(ch)
	}
}

// publish fans an event out to every live subscriber. The send is
// non-blocking: a subscriber whose buffer is full is cut off, its
// channel closed so the consumer observes the failure.
func (r *Room) publish(ev RoomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			delete(r.subs, id)
			close(ch)
			log.Warn().Str("module", "core.room").Str("room", string(r.id)).Int("sub", id).Msg("subscriber lagged, dropping")
		}
	}
}

// Delete broadcasts RoomDelete, closes every subscription and releases
// the router. Idempotent.
func (r *Room) Delete() {
	r.publish(RoomEvent{Kind: EventRoomDelete})

	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return
	}
	r.deleted = true
	router := r.router
	r.router = nil
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.mu.Unlock()

	if router != nil {
		router.Close()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room deleted")
}
