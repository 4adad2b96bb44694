package core

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not registered in room")
	ErrBadProduceType = errors.New("unknown produce type")
)

type memberState struct {
	user      *domain.User
	producing map[domain.ProduceType]bool
}

// Roster is a room's user registry. Joining is a two-step flow: the
// management API issues a single-use token for a username, then the
// signaling connection redeems it with Register.
type Roster struct {
	room *Room

	mu     sync.RWMutex
	tokens map[string]*domain.User
	users  map[domain.UserID]*memberState
}

func newRoster(room *Room) *Roster {
	return &Roster{
		room:   room,
		tokens: make(map[string]*domain.User),
		users:  make(map[domain.UserID]*memberState),
	}
}

// Issue creates a user for username and returns the join token the
// client must present in its authenticate command.
func (ro *Roster) Issue(username string) (string, error) {
	user, err := domain.NewUser(username)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	ro.mu.Lock()
	ro.tokens[token] = user
	ro.mu.Unlock()
	return token, nil
}

// Register redeems a join token. The token is consumed: a second
// Register with the same token fails. On success the user becomes a
// room member and UserJoined is broadcast.
func (ro *Roster) Register(token string) (*domain.User, bool) {
	ro.mu.Lock()
	user, ok := ro.tokens[token]
	if !ok {
		ro.mu.Unlock()
		return nil, false
	}
	delete(ro.tokens, token)
	ro.users[user.ID] = &memberState{
		user:      user,
		producing: make(map[domain.ProduceType]bool),
	}
	ro.mu.Unlock()

	log.Info().Str("module", "core.roster").Str("room", string(ro.room.ID())).Str("user", string(user.ID)).Msg("user registered")
	ro.room.publish(RoomEvent{Kind: EventUserJoined, UserID: user.ID})
	return user, true
}

// Remove drops a user from the roster and broadcasts UserLeft.
// Removing an unknown id is a no-op, so callers may treat it as
// idempotent cleanup.
func (ro *Roster) Remove(id domain.UserID) {
	ro.mu.Lock()
	_, ok := ro.users[id]
	if ok {
		delete(ro.users, id)
	}
	ro.mu.Unlock()
	if !ok {
		return
	}
	log.Info().Str("module", "core.roster").Str("room", string(ro.room.ID())).Str("user", string(id)).Msg("user removed")
	ro.room.publish(RoomEvent{Kind: EventUserLeft, UserID: id})
}

func (ro *Roster) Contains(id domain.UserID) bool {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	_, ok := ro.users[id]
	return ok
}

func (ro *Roster) Count() int {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return len(ro.users)
}

// Snapshot projects every current member to its public info, keyed by
// user id.
func (ro *Roster) Snapshot() map[domain.UserID]domain.UserInfo {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	out := make(map[domain.UserID]domain.UserInfo, len(ro.users))
	for id, m := range ro.users {
		info := domain.UserInfo{Username: m.user.Username}
		for pt := range m.producing {
			info.Producing = append(info.Producing, pt)
		}
		out[id] = info
	}
	return out
}

// StartProduce marks a user as publishing the given media type and
// broadcasts UserStartProduce. Starting an already-active type is a
// no-op without a broadcast.
func (ro *Roster) StartProduce(id domain.UserID, pt domain.ProduceType) error {
	if !pt.Valid() {
		return ErrBadProduceType
	}
	ro.mu.Lock()
	m, ok := ro.users[id]
	if !ok {
		ro.mu.Unlock()
		return ErrUserNotFound
	}
	already := m.producing[pt]
	m.producing[pt] = true
	ro.mu.Unlock()

	if !already {
		ro.room.publish(RoomEvent{Kind: EventUserStartProduce, UserID: id, Produce: pt})
	}
	return nil
}

// StopProduce clears a user's produce state for the given media type
// and broadcasts UserStopProduce.
func (ro *Roster) StopProduce(id domain.UserID, pt domain.ProduceType) error {
	if !pt.Valid() {
		return ErrBadProduceType
	}
	ro.mu.Lock()
	m, ok := ro.users[id]
	if !ok {
		ro.mu.Unlock()
		return ErrUserNotFound
	}
	active := m.producing[pt]
	delete(m.producing, pt)
	ro.mu.Unlock()

	if active {
		ro.room.publish(RoomEvent{Kind: EventUserStopProduce, UserID: id, Produce: pt})
	}
	return nil
}
